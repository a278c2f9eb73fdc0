package model

import "time"

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

type Message struct {
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Citations []int     `json:"citations"`
	Timestamp time.Time `json:"timestamp"`
	// IsError marks assistant messages carrying a failure instead of an answer.
	IsError bool `json:"is_error,omitempty"`
}

type ConversationState struct {
	SubjectDocumentID *int64    `json:"subject_document_id"`
	ConversationID    *int64    `json:"conversation_id,omitempty"`
	Messages          []Message `json:"messages"`
	Pending           bool      `json:"pending"`
}
