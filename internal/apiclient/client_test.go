package apiclient

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/devJinesh/DocuQuery/internal/backendtest"
	"github.com/devJinesh/DocuQuery/internal/model"
	appErr "github.com/devJinesh/DocuQuery/internal/pkg/errors"
)

func int64Ptr(v int64) *int64 { return &v }

func TestUploadAndList(t *testing.T) {
	backend := backendtest.New(t)
	client := New(backend.URL)
	ctx := context.Background()

	doc, err := client.Upload(ctx, "a.pdf", strings.NewReader("%PDF-1.4 hello"))
	require.NoError(t, err)
	require.Equal(t, "a.pdf", doc.Name)
	require.NotZero(t, doc.ID)
	require.False(t, doc.Processed)
	require.False(t, doc.UploadDate.IsZero())

	list, err := client.ListDocuments(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, list.Documents, 1)
	require.Equal(t, doc.ID, list.Documents[0].ID)

	got, err := client.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, doc.Name, got.Name)
}

func TestUploadBackendFailureCarriesDetail(t *testing.T) {
	backend := backendtest.New(t)
	backend.FailUpload("big.pdf", backendtest.Failure{Status: http.StatusBadRequest, Detail: "file too large"})
	client := New(backend.URL)

	_, err := client.Upload(context.Background(), "big.pdf", strings.NewReader("x"))
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Equal(t, "file too large", apiErr.Detail)
	require.Equal(t, "file too large", appErr.Detail(err))
}

func TestDeleteAndNotFound(t *testing.T) {
	backend := backendtest.New(t)
	doc := backend.AddDocument("a.pdf", true)
	client := New(backend.URL)
	ctx := context.Background()

	require.NoError(t, client.DeleteDocument(ctx, doc.ID))
	err := client.DeleteDocument(ctx, doc.ID)
	require.ErrorIs(t, err, appErr.ErrNotFound)
	require.Equal(t, "Document not found", appErr.Detail(err))

	_, err = client.GetDocument(ctx, 999)
	require.True(t, appErr.IsNotFound(err))
}

func TestQueryOmitsEmptyOverrides(t *testing.T) {
	backend := backendtest.New(t)
	backend.SetQuery(func(body map[string]interface{}) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{"answer": "$4.2M", "citations": []int{3, 7}, "chunks": []interface{}{}}
	})
	client := New(backend.URL)

	resp, err := client.Query(context.Background(), QueryRequest{
		Question: "What is the total revenue?",
		DocID:    int64Ptr(42),
		APIKey:   "k",
		Stream:   true,
	})
	require.NoError(t, err)
	require.Equal(t, "$4.2M", resp.Answer)
	require.Equal(t, []int{3, 7}, resp.Citations)

	bodies := backend.QueryBodies()
	require.Len(t, bodies, 1)
	body := bodies[0]
	require.Equal(t, "k", body["api_key"])
	require.NotContains(t, body, "api_base_url")
	require.NotContains(t, body, "model")
	require.Equal(t, false, body["stream"])
	require.Equal(t, float64(42), body["doc_id"])
	require.Contains(t, body, "conversation_id")
	require.Nil(t, body["conversation_id"])
}

func TestConversationsReindexStats(t *testing.T) {
	backend := backendtest.New(t)
	doc := backend.AddDocument("a.pdf", true)
	client := New(backend.URL)
	ctx := context.Background()

	conv, err := client.CreateConversation(ctx, "Revenue", &doc.ID)
	require.NoError(t, err)
	require.Equal(t, "Revenue", conv.Title)
	require.Equal(t, doc.ID, *conv.DocID)

	fetched, err := client.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Equal(t, conv.ID, fetched.ID)
	require.Empty(t, fetched.Messages)

	ack, err := client.Reindex(ctx, &doc.ID)
	require.NoError(t, err)
	require.Contains(t, ack.Message, "Reindexing")
	_, err = client.Reindex(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"1", "all"}, backend.Reindexed())

	stats, err := client.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalDocuments)
	require.Equal(t, 1, stats.TotalConversations)
}

func TestExtractionArtifacts(t *testing.T) {
	backend := backendtest.New(t)
	doc := backend.AddDocument("a.pdf", true)
	img := backend.AddImage(doc.ID, 2, []byte("png-bytes"))
	tbl := backend.AddTable(doc.ID, 3, []byte("a,b\n1,2\n"))
	client := New(backend.URL)
	ctx := context.Background()

	images, err := client.DocumentImages(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, images, 1)
	require.Equal(t, img.ID, images[0].ID)
	require.Equal(t, 2, images[0].PageNumber)
	require.Equal(t, 640, *images[0].Width)

	tables, err := client.DocumentTables(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	require.Equal(t, 3, tables[0].PageNumber)
	require.NotNil(t, tables[0].CSVPath)
	require.Nil(t, tables[0].ExcelPath)

	empty, err := client.DocumentImages(ctx, 99)
	require.NoError(t, err)
	require.NotNil(t, empty)
	require.Empty(t, empty)

	var buf bytes.Buffer
	n, err := client.Download(ctx, model.DownloadTableCSV, tbl.ID, &buf)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)
	require.Equal(t, "a,b\n1,2\n", buf.String())

	buf.Reset()
	_, err = client.Download(ctx, model.DownloadImage, img.ID, &buf)
	require.NoError(t, err)
	require.Equal(t, "png-bytes", buf.String())

	_, err = client.Download(ctx, model.DownloadTableExcel, tbl.ID, &buf)
	require.True(t, appErr.IsNotFound(err))
	require.Equal(t, "File not found on disk", appErr.Detail(err))

	_, err = client.Download(ctx, model.DownloadKind("thumbnail"), img.ID, &buf)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Equal(t, "Invalid file type", apiErr.Detail)
}

func TestExportConversationFromBackend(t *testing.T) {
	backend := backendtest.New(t)
	client := New(backend.URL)
	ctx := context.Background()
	conv, err := client.CreateConversation(ctx, "Revenue", nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := client.ExportConversation(ctx, conv.ID, "json", &buf)
	require.NoError(t, err)
	require.Positive(t, n)
	require.Contains(t, buf.String(), "Revenue")

	_, err = client.ExportConversation(ctx, conv.ID, "pdf", &buf)
	require.Equal(t, "Invalid format", appErr.Detail(err))
	_, err = client.ExportConversation(ctx, conv.ID+100, "json", &buf)
	require.True(t, appErr.IsNotFound(err))
}

func TestRequestIDHeader(t *testing.T) {
	backend := backendtest.New(t)
	client := New(backend.URL)
	_, err := client.Stats(context.Background())
	require.NoError(t, err)
	ids := backend.RequestIDs()
	require.Len(t, ids, 1)
	require.Len(t, ids[0], 36)
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := New(url)
	_, err := client.Stats(context.Background())
	require.Error(t, err)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, appErr.MsgConnection, appErr.Detail(err))
}

func TestTimeoutIsTransportFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := New(srv.URL, WithTimeout(50*time.Millisecond))
	_, err := client.Stats(context.Background())
	var te *TransportError
	require.True(t, errors.As(err, &te))
}

func TestParseDetail(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        string
	}{
		{name: "string detail", contentType: "application/json", body: `{"detail":"Only PDF files supported"}`, want: "Only PDF files supported"},
		{name: "validation list", contentType: "application/json", body: `{"detail":[{"msg":"field required"},{"msg":"too long"}]}`, want: "field required; too long"},
		{name: "error field", contentType: "application/json", body: `{"error":"boom","detail":null}`, want: "boom"},
		{name: "plain text", contentType: "text/plain; charset=utf-8", body: "Internal Server Error", want: "Internal Server Error"},
		{name: "object detail", contentType: "application/json", body: `{"detail":{"msg":"bad range"}}`, want: "bad range"},
		{name: "message field", contentType: "application/json", body: `{"message":"try later"}`, want: "try later"},
		{name: "html page", contentType: "text/html", body: "<html>bad gateway</html>", want: ""},
		{name: "oversized text", contentType: "text/plain", body: strings.Repeat("x", 513), want: ""},
		{name: "empty", contentType: "application/json", body: "  ", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, parseDetail(tt.contentType, []byte(tt.body)))
		})
	}
}

func TestHTMLErrorPageUsesFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>502 Bad Gateway</html>"))
	}))
	t.Cleanup(srv.Close)

	_, err := New(srv.URL).Stats(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	require.Empty(t, apiErr.Detail)
	require.Equal(t, appErr.MsgFallback, appErr.Detail(err))
}

func TestDocumentTimestampWithoutZone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":7,"name":"a.pdf","page_count":3,"file_size":10,"upload_date":"2024-05-01T10:20:30.123456","processed":true}`))
	}))
	defer srv.Close()

	doc, err := New(srv.URL).GetDocument(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, model.Document{
		ID:         7,
		Name:       "a.pdf",
		PageCount:  3,
		FileSize:   10,
		Processed:  true,
		UploadDate: model.NewTimestamp(time.Date(2024, 5, 1, 10, 20, 30, 123456000, time.UTC)),
	}, *doc)
}
