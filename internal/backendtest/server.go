// Package backendtest runs an in-process implementation of the backend HTTP
// contract for tests, with hooks to inject failures and latency.
package backendtest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/devJinesh/DocuQuery/internal/model"
)

type Failure struct {
	Status int
	Detail string
}

// QueryFunc decides the outcome of a query from its decoded body. A status
// outside 2xx makes body the error payload.
type QueryFunc func(body map[string]interface{}) (status int, resp interface{})

type Server struct {
	URL string

	srv *httptest.Server

	mu             sync.Mutex
	nextDocID      int64
	nextConvID     int64
	docs           map[int64]model.Document
	conversations  map[int64]*model.Conversation
	uploadFailures map[string]Failure
	uploadHooks    map[string]func()
	deleteFailures map[int64]Failure
	queryFunc      QueryFunc
	queryHook      func()
	events         []string
	queryBodies    []map[string]interface{}
	requestIDs     []string
	reindexed      []string
	nextFileID     int64
	images         map[int64][]model.ExtractedImage
	tables         map[int64][]model.ExtractedTable
	files          map[string][]byte
}

func New(t testing.TB) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := &Server{
		docs:           make(map[int64]model.Document),
		conversations:  make(map[int64]*model.Conversation),
		uploadFailures: make(map[string]Failure),
		uploadHooks:    make(map[string]func()),
		deleteFailures: make(map[int64]Failure),
		images:         make(map[int64][]model.ExtractedImage),
		tables:         make(map[int64][]model.ExtractedTable),
		files:          make(map[string][]byte),
	}
	s.srv = httptest.NewServer(s.engine())
	s.URL = s.srv.URL + "/api"
	t.Cleanup(s.srv.Close)
	return s
}

func (s *Server) engine() *gin.Engine {
	engine := gin.New()
	engine.Use(s.recordRequestID)
	api := engine.Group("/api")
	api.POST("/upload", s.upload)
	api.GET("/documents", s.listDocuments)
	api.GET("/documents/:id", s.getDocument)
	api.DELETE("/documents/:id", s.deleteDocument)
	api.GET("/documents/:id/images", s.documentImages)
	api.GET("/documents/:id/tables", s.documentTables)
	api.GET("/download/:kind/:id", s.download)
	api.POST("/query", s.query)
	api.POST("/conversations", s.createConversation)
	api.GET("/conversations/:id", s.getConversation)
	api.GET("/conversations/:id/export/:format", s.exportConversation)
	api.POST("/reindex", s.reindex)
	api.GET("/stats", s.stats)
	return engine
}

func (s *Server) FailUpload(fileName string, f Failure) {
	s.mu.Lock()
	s.uploadFailures[fileName] = f
	s.mu.Unlock()
}

// OnUpload runs hook inside the handler for fileName before it answers; a
// blocking hook simulates a slow upload.
func (s *Server) OnUpload(fileName string, hook func()) {
	s.mu.Lock()
	s.uploadHooks[fileName] = hook
	s.mu.Unlock()
}

func (s *Server) FailDelete(id int64, f Failure) {
	s.mu.Lock()
	s.deleteFailures[id] = f
	s.mu.Unlock()
}

func (s *Server) SetQuery(fn QueryFunc) {
	s.mu.Lock()
	s.queryFunc = fn
	s.mu.Unlock()
}

func (s *Server) OnQuery(hook func()) {
	s.mu.Lock()
	s.queryHook = hook
	s.mu.Unlock()
}

// AddDocument seeds a document as if it had been uploaded earlier.
func (s *Server) AddDocument(name string, processed bool) model.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addDocumentLocked(name, 1024, processed)
}

// AddImage attaches an extracted image with content data to docID.
func (s *Server) AddImage(docID int64, page int, data []byte) model.ExtractedImage {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextFileID++
	w, h := 640, 480
	img := model.ExtractedImage{
		ID:         s.nextFileID,
		PageNumber: page,
		ImagePath:  "images/page" + strconv.Itoa(page) + ".png",
		Width:      &w,
		Height:     &h,
	}
	s.images[docID] = append(s.images[docID], img)
	s.files[fileKey(model.DownloadImage, img.ID)] = data
	return img
}

// AddTable attaches an extracted table to docID. Only the csv export exists;
// the excel path stays null.
func (s *Server) AddTable(docID int64, page int, csv []byte) model.ExtractedTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextFileID++
	path := "tables/page" + strconv.Itoa(page) + ".csv"
	tbl := model.ExtractedTable{ID: s.nextFileID, PageNumber: page, CSVPath: &path}
	s.tables[docID] = append(s.tables[docID], tbl)
	s.files[fileKey(model.DownloadTableCSV, tbl.ID)] = csv
	return tbl
}

func fileKey(kind model.DownloadKind, id int64) string {
	return string(kind) + "/" + strconv.FormatInt(id, 10)
}

func (s *Server) MarkProcessed(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[id]; ok {
		doc.Processed = true
		s.docs[id] = doc
	}
}

func (s *Server) Documents() []model.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedDocsLocked()
}

func (s *Server) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func (s *Server) QueryBodies() []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]interface{}(nil), s.queryBodies...)
}

func (s *Server) RequestIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requestIDs...)
}

func (s *Server) Reindexed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.reindexed...)
}

func (s *Server) event(e string) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *Server) recordRequestID(c *gin.Context) {
	s.mu.Lock()
	s.requestIDs = append(s.requestIDs, c.GetHeader("X-Request-Id"))
	s.mu.Unlock()
	c.Next()
}

func (s *Server) addDocumentLocked(name string, size int64, processed bool) model.Document {
	s.nextDocID++
	doc := model.Document{
		ID:         s.nextDocID,
		Name:       name,
		FileSize:   size,
		PageCount:  int(size/2048) + 1,
		Processed:  processed,
		UploadDate: model.NewTimestamp(time.Now().UTC()),
	}
	s.docs[doc.ID] = doc
	return doc
}

// newest first, like the real backend
func (s *Server) sortedDocsLocked() []model.Document {
	out := make([]model.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func fail(c *gin.Context, f Failure) {
	status := f.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"detail": f.Detail})
}

func (s *Server) upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []gin.H{{"msg": "field required"}}})
		return
	}
	s.event("upload:start:" + fh.Filename)
	defer s.event("upload:end:" + fh.Filename)

	s.mu.Lock()
	hook := s.uploadHooks[fh.Filename]
	failure, failed := s.uploadFailures[fh.Filename]
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	if failed {
		fail(c, failure)
		return
	}
	s.mu.Lock()
	doc := s.addDocumentLocked(fh.Filename, fh.Size, false)
	s.mu.Unlock()
	c.JSON(http.StatusOK, doc)
}

func (s *Server) listDocuments(c *gin.Context) {
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	s.mu.Lock()
	docs := s.sortedDocsLocked()
	s.mu.Unlock()
	total := len(docs)
	if skip > len(docs) {
		skip = len(docs)
	}
	docs = docs[skip:]
	if limit >= 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	c.JSON(http.StatusOK, model.DocumentList{Documents: docs, Total: total})
}

func (s *Server) lookup(c *gin.Context) (int64, model.Document, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid id"})
		return 0, model.Document{}, false
	}
	s.mu.Lock()
	doc, ok := s.docs[id]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Document not found"})
		return id, doc, false
	}
	return id, doc, true
}

func (s *Server) getDocument(c *gin.Context) {
	if _, doc, ok := s.lookup(c); ok {
		c.JSON(http.StatusOK, doc)
	}
}

func (s *Server) documentImages(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid id"})
		return
	}
	s.mu.Lock()
	images := append([]model.ExtractedImage{}, s.images[id]...)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"images": images})
}

func (s *Server) documentTables(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid id"})
		return
	}
	s.mu.Lock()
	tables := append([]model.ExtractedTable{}, s.tables[id]...)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"tables": tables})
}

func (s *Server) download(c *gin.Context) {
	kind := model.DownloadKind(c.Param("kind"))
	switch kind {
	case model.DownloadImage, model.DownloadTableCSV, model.DownloadTableExcel:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid file type"})
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid id"})
		return
	}
	s.mu.Lock()
	data, ok := s.files[fileKey(kind, id)]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "File not found on disk"})
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func (s *Server) deleteDocument(c *gin.Context) {
	id, _, ok := s.lookup(c)
	if !ok {
		return
	}
	s.mu.Lock()
	failure, failed := s.deleteFailures[id]
	if !failed {
		delete(s.docs, id)
	}
	s.mu.Unlock()
	if failed {
		fail(c, failure)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document deleted successfully"})
}

func (s *Server) query(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "unreadable body"})
		return
	}
	body := map[string]interface{}{}
	if err := json.Unmarshal(raw, &body); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid json"})
		return
	}
	s.mu.Lock()
	s.queryBodies = append(s.queryBodies, body)
	hook := s.queryHook
	fn := s.queryFunc
	s.mu.Unlock()
	s.event("query:start")
	defer s.event("query:end")
	if hook != nil {
		hook()
	}
	if fn == nil {
		c.JSON(http.StatusOK, gin.H{"answer": "ok", "citations": []int{}, "chunks": []gin.H{}})
		return
	}
	status, resp := fn(body)
	c.JSON(status, resp)
}

func (s *Server) createConversation(c *gin.Context) {
	var req struct {
		Title string `json:"title"`
		DocID *int64 `json:"doc_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Title == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []gin.H{{"msg": "title required"}}})
		return
	}
	now := model.NewTimestamp(time.Now().UTC())
	s.mu.Lock()
	s.nextConvID++
	conv := &model.Conversation{
		ID:        s.nextConvID,
		Title:     req.Title,
		DocID:     req.DocID,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []model.ConversationMessage{},
	}
	s.conversations[conv.ID] = conv
	s.mu.Unlock()
	c.JSON(http.StatusOK, conv)
}

// AppendConversationMessage seeds a transcript entry.
func (s *Server) AppendConversationMessage(id int64, msg model.ConversationMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[id]; ok {
		conv.Messages = append(conv.Messages, msg)
	}
}

func (s *Server) getConversation(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid id"})
		return
	}
	s.mu.Lock()
	conv, ok := s.conversations[id]
	var copied model.Conversation
	if ok {
		copied = *conv
		copied.Messages = append([]model.ConversationMessage(nil), conv.Messages...)
	}
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Conversation not found"})
		return
	}
	c.JSON(http.StatusOK, copied)
}

// exportConversation answers with the conversation as JSON for every valid
// format; only the routing and error contract matter to the client.
func (s *Server) exportConversation(c *gin.Context) {
	switch c.Param("format") {
	case "json", "html", "markdown":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid format"})
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid id"})
		return
	}
	s.mu.Lock()
	conv, ok := s.conversations[id]
	var data []byte
	if ok {
		data, err = json.Marshal(conv)
	}
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Conversation not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func (s *Server) reindex(c *gin.Context) {
	var req struct {
		DocID *int64 `json:"doc_id"`
	}
	_ = c.ShouldBindJSON(&req)
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.DocID == nil {
		s.reindexed = append(s.reindexed, "all")
		c.JSON(http.StatusOK, gin.H{"message": "Reindexing " + strconv.Itoa(len(s.docs)) + " documents"})
		return
	}
	if _, ok := s.docs[*req.DocID]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Document not found"})
		return
	}
	s.reindexed = append(s.reindexed, strconv.FormatInt(*req.DocID, 10))
	c.JSON(http.StatusOK, gin.H{"message": "Reindexing document " + strconv.FormatInt(*req.DocID, 10)})
}

func (s *Server) stats(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, model.Stats{
		TotalDocuments:     len(s.docs),
		TotalChunks:        len(s.docs) * 10,
		TotalConversations: len(s.conversations),
		DiskUsageMB:        1.5,
		VectorStoreStats:   map[string]interface{}{"total_vectors": len(s.docs) * 10},
	})
}
