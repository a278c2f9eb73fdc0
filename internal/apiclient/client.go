package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/devJinesh/DocuQuery/internal/model"
)

const maxErrorBody = 64 << 10

type QueryRequest struct {
	Question       string `json:"question"`
	DocID          *int64 `json:"doc_id"`
	ConversationID *int64 `json:"conversation_id"`
	Stream         bool   `json:"stream"`
	APIBaseURL     string `json:"api_base_url,omitempty"`
	APIKey         string `json:"api_key,omitempty"`
	Model          string `json:"model,omitempty"`
}

type QueryResponse struct {
	Answer    string                   `json:"answer"`
	Citations []int                    `json:"citations"`
	Chunks    []map[string]interface{} `json:"chunks"`
}

type Ack struct {
	Message string `json:"message"`
}

type createConversationRequest struct {
	Title string `json:"title"`
	DocID *int64 `json:"doc_id"`
}

type reindexRequest struct {
	DocID *int64 `json:"doc_id"`
}

type imagesResponse struct {
	Images []model.ExtractedImage `json:"images"`
}

type tablesResponse struct {
	Tables []model.ExtractedTable `json:"tables"`
}

// rawBody makes do copy a successful response body into w instead of
// decoding it.
type rawBody struct {
	w io.Writer
	n int64
}

// Client is the typed boundary to the document-analysis backend. It holds
// no state besides its transport.
type Client struct {
	baseURL string
	client  *http.Client
	newID   func() string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithTimeout bounds every request; zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{},
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Upload(ctx context.Context, fileName string, r io.Reader) (*model.Document, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()
	var out model.Document
	if err := c.do(ctx, "upload", http.MethodPost, "/upload", mw.FormDataContentType(), pr, &out); err != nil {
		pr.CloseWithError(err)
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListDocuments(ctx context.Context, skip, limit int) (*model.DocumentList, error) {
	q := url.Values{}
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(limit))
	var out model.DocumentList
	if err := c.doJSON(ctx, "list_documents", http.MethodGet, "/documents?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if out.Documents == nil {
		out.Documents = []model.Document{}
	}
	return &out, nil
}

func (c *Client) GetDocument(ctx context.Context, id int64) (*model.Document, error) {
	var out model.Document
	if err := c.doJSON(ctx, "get_document", http.MethodGet, "/documents/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteDocument(ctx context.Context, id int64) error {
	return c.doJSON(ctx, "delete_document", http.MethodDelete, "/documents/"+strconv.FormatInt(id, 10), nil, nil)
}

func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	req.Stream = false
	var out QueryResponse
	if err := c.doJSON(ctx, "query", http.MethodPost, "/query", req, &out); err != nil {
		return nil, err
	}
	if out.Citations == nil {
		out.Citations = []int{}
	}
	return &out, nil
}

func (c *Client) CreateConversation(ctx context.Context, title string, docID *int64) (*model.Conversation, error) {
	var out model.Conversation
	body := createConversationRequest{Title: title, DocID: docID}
	if err := c.doJSON(ctx, "create_conversation", http.MethodPost, "/conversations", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetConversation(ctx context.Context, id int64) (*model.Conversation, error) {
	var out model.Conversation
	if err := c.doJSON(ctx, "get_conversation", http.MethodGet, "/conversations/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reindex re-processes one document, or every document when docID is nil.
func (c *Client) Reindex(ctx context.Context, docID *int64) (*Ack, error) {
	var out Ack
	if err := c.doJSON(ctx, "reindex", http.MethodPost, "/reindex", reindexRequest{DocID: docID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DocumentImages lists the images extracted from a document. Unknown
// documents yield an empty list.
func (c *Client) DocumentImages(ctx context.Context, id int64) ([]model.ExtractedImage, error) {
	var out imagesResponse
	if err := c.doJSON(ctx, "document_images", http.MethodGet, "/documents/"+strconv.FormatInt(id, 10)+"/images", nil, &out); err != nil {
		return nil, err
	}
	if out.Images == nil {
		out.Images = []model.ExtractedImage{}
	}
	return out.Images, nil
}

func (c *Client) DocumentTables(ctx context.Context, id int64) ([]model.ExtractedTable, error) {
	var out tablesResponse
	if err := c.doJSON(ctx, "document_tables", http.MethodGet, "/documents/"+strconv.FormatInt(id, 10)+"/tables", nil, &out); err != nil {
		return nil, err
	}
	if out.Tables == nil {
		out.Tables = []model.ExtractedTable{}
	}
	return out.Tables, nil
}

// Download streams an extracted artifact into w and returns the bytes
// written.
func (c *Client) Download(ctx context.Context, kind model.DownloadKind, fileID int64, w io.Writer) (int64, error) {
	out := &rawBody{w: w}
	path := "/download/" + url.PathEscape(string(kind)) + "/" + strconv.FormatInt(fileID, 10)
	if err := c.do(ctx, "download", http.MethodGet, path, "", nil, out); err != nil {
		return out.n, err
	}
	return out.n, nil
}

// ExportConversation streams the backend's rendering of a conversation
// (json, html or markdown) into w.
func (c *Client) ExportConversation(ctx context.Context, id int64, format string, w io.Writer) (int64, error) {
	out := &rawBody{w: w}
	path := "/conversations/" + strconv.FormatInt(id, 10) + "/export/" + url.PathEscape(format)
	if err := c.do(ctx, "export_conversation", http.MethodGet, path, "", nil, out); err != nil {
		return out.n, err
	}
	return out.n, nil
}

func (c *Client) Stats(ctx context.Context) (*model.Stats, error) {
	var out model.Stats
	if err := c.doJSON(ctx, "stats", http.MethodGet, "/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out interface{}) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, op, method, path, contentType, body, out)
}

func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader, out interface{}) error {
	requestID := c.newID()
	logger := logutil.GetLogger(ctx).With(
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
	)
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		logger.Warn("backend request failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	logger.Debug("backend responded", zap.Int("status", resp.StatusCode), zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Detail:     parseDetail(resp.Header.Get("Content-Type"), raw),
			RequestID:  requestID,
		}
		logger.Warn("backend rejected request", zap.Int("status", resp.StatusCode), zap.String("detail", apiErr.Detail))
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if raw, ok := out.(*rawBody); ok {
		n, err := io.Copy(raw.w, resp.Body)
		raw.n = n
		if err != nil {
			if ctx.Err() != nil {
				return &TransportError{Op: op, Err: err}
			}
			return fmt.Errorf("%s: copy response: %w", op, err)
		}
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return &TransportError{Op: op, Err: err}
		}
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
