package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/devJinesh/DocuQuery/internal/filestore"
	"github.com/devJinesh/DocuQuery/internal/model"
	appErr "github.com/devJinesh/DocuQuery/internal/pkg/errors"
)

var exportTime = time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)

func sampleTranscript() Transcript {
	ts := model.NewTimestamp(time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC))
	return Transcript{
		ID:           7,
		Title:        "Revenue",
		DocumentName: "report.pdf",
		Messages: []model.ConversationMessage{
			{Sender: model.SenderUser, Text: "What is the total revenue?", Timestamp: ts},
			{Sender: model.SenderAssistant, Text: "$4.2M <b>bold</b>", Timestamp: ts, Citations: []int{3, 7}},
		},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"json": FormatJSON, "MD": FormatMarkdown, "markdown": FormatMarkdown, " html ": FormatHTML} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseFormat("pdf")
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestFileName(t *testing.T) {
	require.Equal(t, "conversation_7_20240305_140709.md", FileName(7, FormatMarkdown, exportTime))
	require.Equal(t, "conversation_0_20240305_140709.json", FileName(0, FormatJSON, exportTime))
}

func TestRenderMarkdown(t *testing.T) {
	out := markdown(sampleTranscript(), exportTime)
	require.True(t, strings.HasPrefix(out, "# Revenue\n\n**Exported:** 2024-03-05 14:07:09\n\n**Document:** report.pdf\n\n---\n\n"))
	require.Contains(t, out, "## USER\n\nWhat is the total revenue?\n\n")
	require.Contains(t, out, "**Sources:** Page 3, Page 7\n\n")
	require.Contains(t, out, "*2024-03-05 14:00:00*\n\n")
}

func TestRenderHTMLEscapesMessageMarkup(t *testing.T) {
	out, err := newRenderer().Render(sampleTranscript(), FormatHTML, exportTime)
	require.NoError(t, err)
	html := string(out)
	require.Contains(t, html, "<title>Revenue</title>")
	require.Contains(t, html, "<h1>Revenue</h1>")
	require.NotContains(t, html, "<b>bold</b>")
	require.Contains(t, html, "Page 3, Page 7")
}

func TestRenderJSON(t *testing.T) {
	out, err := newRenderer().Render(sampleTranscript(), FormatJSON, exportTime)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Equal(t, "Revenue", decoded["title"])
	require.Len(t, decoded["messages"], 2)
}

func TestExportWritesFile(t *testing.T) {
	dir := t.TempDir()
	e := New(filestore.NewLocal(dir))
	e.now = func() time.Time { return exportTime }
	loc, err := e.Export(context.Background(), sampleTranscript(), FormatMarkdown)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "conversation_7_20240305_140709.md"), loc)
	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	require.Contains(t, string(data), "# Revenue")
}

func TestFromSession(t *testing.T) {
	conv := int64(4)
	now := time.Now().UTC()
	tr := FromSession(model.ConversationState{
		ConversationID: &conv,
		Messages: []model.Message{
			{Sender: model.SenderUser, Text: "q", Timestamp: now},
			{Sender: model.SenderAssistant, Text: "Error: boom", Timestamp: now, IsError: true, Citations: []int{}},
		},
	}, "", "doc.pdf")
	require.Equal(t, int64(4), tr.ID)
	require.Len(t, tr.Messages, 2)
	require.Equal(t, "Conversation", title(tr))
	require.True(t, tr.CreatedAt.Equal(now))
}
