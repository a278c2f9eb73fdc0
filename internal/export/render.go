package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	stdhtml "html"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/devJinesh/DocuQuery/internal/model"
	appErr "github.com/devJinesh/DocuQuery/internal/pkg/errors"
)

type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

const timeLayout = "2006-01-02 15:04:05"

// ParseFormat accepts the format names and the "md" shorthand.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("%w: unknown export format %q", appErr.ErrInvalid, s)
}

func (f Format) Ext() string {
	if f == FormatMarkdown {
		return "md"
	}
	return string(f)
}

// Transcript is the exportable view of one conversation.
type Transcript struct {
	ID           int64                       `json:"id"`
	Title        string                      `json:"title"`
	DocumentName string                      `json:"document_name,omitempty"`
	CreatedAt    model.Timestamp             `json:"created_at"`
	Messages     []model.ConversationMessage `json:"messages"`
}

func FromConversation(conv model.Conversation, documentName string) Transcript {
	msgs := conv.Messages
	if msgs == nil {
		msgs = []model.ConversationMessage{}
	}
	return Transcript{
		ID:           conv.ID,
		Title:        conv.Title,
		DocumentName: documentName,
		CreatedAt:    conv.CreatedAt,
		Messages:     msgs,
	}
}

// FromSession converts a live chat transcript. Error replies are kept.
func FromSession(state model.ConversationState, title, documentName string) Transcript {
	t := Transcript{Title: title, DocumentName: documentName, Messages: make([]model.ConversationMessage, 0, len(state.Messages))}
	if state.ConversationID != nil {
		t.ID = *state.ConversationID
	}
	for i, m := range state.Messages {
		if i == 0 {
			t.CreatedAt = model.NewTimestamp(m.Timestamp)
		}
		t.Messages = append(t.Messages, model.ConversationMessage{
			Sender:    m.Sender,
			Text:      m.Text,
			Timestamp: model.NewTimestamp(m.Timestamp),
			Citations: m.Citations,
		})
	}
	return t
}

type renderer struct {
	md goldmark.Markdown
}

func newRenderer() *renderer {
	return &renderer{md: goldmark.New(goldmark.WithExtensions(extension.GFM))}
}

// Render produces the export body for t. now stamps the export date.
func (r *renderer) Render(t Transcript, format Format, now time.Time) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(t, "", "  ")
	case FormatMarkdown:
		return []byte(markdown(t, now)), nil
	case FormatHTML:
		return r.html(t, now)
	}
	return nil, fmt.Errorf("%w: unknown export format %q", appErr.ErrInvalid, format)
}

func title(t Transcript) string {
	if strings.TrimSpace(t.Title) == "" {
		return "Conversation"
	}
	return t.Title
}

func markdown(t Transcript, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title(t))
	fmt.Fprintf(&b, "**Exported:** %s\n\n", now.Format(timeLayout))
	if t.DocumentName != "" {
		fmt.Fprintf(&b, "**Document:** %s\n\n", t.DocumentName)
	}
	b.WriteString("---\n\n")
	for _, m := range t.Messages {
		fmt.Fprintf(&b, "## %s\n\n", strings.ToUpper(string(m.Sender)))
		fmt.Fprintf(&b, "%s\n\n", m.Text)
		if len(m.Citations) > 0 {
			pages := make([]string, len(m.Citations))
			for i, c := range m.Citations {
				pages[i] = fmt.Sprintf("Page %d", c)
			}
			fmt.Fprintf(&b, "**Sources:** %s\n\n", strings.Join(pages, ", "))
		}
		if !m.Timestamp.IsZero() {
			fmt.Fprintf(&b, "*%s*\n\n", m.Timestamp.Format(timeLayout))
		}
		b.WriteString("---\n\n")
	}
	return b.String()
}

// html renders the markdown form; raw HTML inside messages stays escaped.
func (r *renderer) html(t Transcript, now time.Time) ([]byte, error) {
	var body bytes.Buffer
	if err := r.md.Convert([]byte(markdown(t, now)), &body); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&out, "<title>%s</title>\n", stdhtml.EscapeString(title(t)))
	out.WriteString("<style>body{font-family:-apple-system,'Segoe UI',Arial,sans-serif;max-width:900px;margin:40px auto;padding:20px}</style>\n")
	out.WriteString("</head>\n<body>\n")
	out.Write(body.Bytes())
	out.WriteString("</body>\n</html>\n")
	return out.Bytes(), nil
}
