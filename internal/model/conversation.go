package model

type ConversationMessage struct {
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp Timestamp `json:"timestamp"`
	Citations []int     `json:"citations"`
}

type Conversation struct {
	ID        int64                 `json:"id"`
	Title     string                `json:"title"`
	DocID     *int64                `json:"doc_id"`
	CreatedAt Timestamp             `json:"created_at"`
	UpdatedAt Timestamp             `json:"updated_at"`
	Messages  []ConversationMessage `json:"messages"`
}
