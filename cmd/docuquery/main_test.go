package main

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/devJinesh/DocuQuery/internal/backendtest"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func setupEnv(t *testing.T) *backendtest.Server {
	srv := backendtest.New(t)
	t.Setenv("DOCUQUERY_API_URL", srv.URL)
	t.Setenv("DOCUQUERY_KV_TYPE", "file")
	t.Setenv("DOCUQUERY_KV_DIR", t.TempDir())
	t.Setenv("DOCUQUERY_LOG_LEVEL", "error")
	return srv
}

func TestUploadAndList(t *testing.T) {
	srv := setupEnv(t)
	dir := t.TempDir()
	a := filepath.Join(dir, "a.pdf")
	b := filepath.Join(dir, "b.pdf")
	require.NoError(t, os.WriteFile(a, []byte("%PDF-1.4"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("%PDF-1.4"), 0o644))
	srv.FailUpload("b.pdf", backendtest.Failure{Status: http.StatusRequestEntityTooLarge, Detail: "file too large"})

	out, err := runCLI(t, "", "settings", "color", "off")
	require.NoError(t, err)
	require.Empty(t, out)

	out, err = runCLI(t, "", "upload", a, b)
	require.EqualError(t, err, "1 of 2 uploads failed")
	require.Contains(t, out, "success   a.pdf (id 1)")
	require.Contains(t, out, "error     b.pdf: file too large")

	out, err = runCLI(t, "", "docs", "list")
	require.NoError(t, err)
	require.Contains(t, out, "a.pdf")
	require.NotContains(t, out, "b.pdf")
}

func TestAskSendsStoredSettings(t *testing.T) {
	srv := setupEnv(t)
	doc := srv.AddDocument("report.pdf", true)
	srv.SetQuery(func(body map[string]interface{}) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{"answer": "$4.2M", "citations": []int{3, 7}}
	})

	_, err := runCLI(t, "", "settings", "set", "--api-key", "k")
	require.NoError(t, err)
	out, err := runCLI(t, "", "settings", "show")
	require.NoError(t, err)
	require.Contains(t, out, "api_key:      *")

	out, err = runCLI(t, "", "ask", "--doc", "1", "What", "is", "the", "total", "revenue?")
	require.NoError(t, err)
	require.Contains(t, out, "$4.2M")
	require.Contains(t, out, "p.3, p.7")

	bodies := srv.QueryBodies()
	require.Len(t, bodies, 1)
	require.Equal(t, float64(doc.ID), bodies[0]["doc_id"])
	require.Equal(t, "k", bodies[0]["api_key"])
	require.NotContains(t, bodies[0], "model")
}

func TestChatREPL(t *testing.T) {
	srv := setupEnv(t)
	exportDir := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"export":{"type":"local","data":{"dir":"`+filepath.ToSlash(exportDir)+`"}}}`), 0o644))
	srv.AddDocument("report.pdf", true)

	out, err := runCLI(t, "hello\n/export md\n/reset\n/bogus\n/quit\n", "--config", cfgPath, "chat", "--doc", "1")
	require.NoError(t, err)
	require.Contains(t, out, "chatting about report.pdf")
	require.Contains(t, out, "ok")
	require.Contains(t, out, "exported to ")
	require.Contains(t, out, "conversation cleared")
	require.Contains(t, out, "unknown command /bogus")

	entries, err := os.ReadDir(exportDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, strings.HasSuffix(entries[0].Name(), ".md"))
}

func TestChatDeleteSelectedDocumentClearsSubject(t *testing.T) {
	srv := setupEnv(t)
	doc := srv.AddDocument("report.pdf", true)
	other := srv.AddDocument("notes.pdf", true)

	out, err := runCLI(t, "first\n/delete\nsecond\n/doc 2\nthird\n/quit\n", "chat", "--doc", "1")
	require.NoError(t, err)
	require.Contains(t, out, "chatting about report.pdf (id 1)")
	require.Contains(t, out, "deleted report.pdf")
	require.Contains(t, out, "chatting about all documents")
	require.Contains(t, out, "chatting about notes.pdf (id 2)")

	bodies := srv.QueryBodies()
	require.Len(t, bodies, 3)
	require.Equal(t, float64(doc.ID), bodies[0]["doc_id"])
	require.Nil(t, bodies[1]["doc_id"], "deleted subject falls back to all documents")
	require.Equal(t, float64(other.ID), bodies[2]["doc_id"])
	require.Len(t, srv.Documents(), 1)
}

func TestDocsExtractionCommands(t *testing.T) {
	srv := setupEnv(t)
	doc := srv.AddDocument("report.pdf", true)
	img := srv.AddImage(doc.ID, 2, []byte("png-bytes"))
	tbl := srv.AddTable(doc.ID, 4, []byte("q,revenue\nQ1,4.2\n"))

	out, err := runCLI(t, "", "docs", "images", "1")
	require.NoError(t, err)
	require.Contains(t, out, "page 2")
	require.Contains(t, out, "640x480")
	require.Contains(t, out, img.ImagePath)

	out, err = runCLI(t, "", "docs", "tables", "1")
	require.NoError(t, err)
	require.Contains(t, out, "page 4")
	require.Contains(t, out, "csv")
	require.NotContains(t, out, "excel")

	out, err = runCLI(t, "", "docs", "images", "7")
	require.NoError(t, err)
	require.Contains(t, out, "no images")

	dest := filepath.Join(t.TempDir(), "table.csv")
	out, err = runCLI(t, "", "docs", "download", "csv", strconv.FormatInt(tbl.ID, 10), "--out", dest)
	require.NoError(t, err)
	require.Contains(t, out, "saved "+dest)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "q,revenue\nQ1,4.2\n", string(data))

	missing := filepath.Join(t.TempDir(), "missing.xlsx")
	_, err = runCLI(t, "", "docs", "download", "excel", strconv.FormatInt(tbl.ID, 10), "--out", missing)
	require.Error(t, err)
	require.Equal(t, "File not found on disk", describe(err))
	_, statErr := os.Stat(missing)
	require.True(t, os.IsNotExist(statErr))

	_, err = runCLI(t, "", "docs", "download", "thumbnail", "1")
	require.Error(t, err)
}

func TestDeleteUnknownDocument(t *testing.T) {
	setupEnv(t)
	_, err := runCLI(t, "", "docs", "delete", "9")
	require.Error(t, err)
	require.Equal(t, "Document not found", describe(err))
}

func TestHelpers(t *testing.T) {
	require.Equal(t, "(unset)", mask(""))
	require.Equal(t, "***", mask("abc"))
	require.Equal(t, "****5678", mask("12345678"))
	require.Equal(t, "512 B", size(512))
	require.Equal(t, "2.0 KB", size(2048))
	require.Equal(t, "1.5 MB", size(3<<19))
	_, err := parseID("x")
	require.Error(t, err)
}
