package model

type Document struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	FileSize   int64     `json:"file_size"`
	PageCount  int       `json:"page_count"`
	Processed  bool      `json:"processed"`
	UploadDate Timestamp `json:"upload_date"`
}

type DocumentList struct {
	Documents []Document `json:"documents"`
	Total     int        `json:"total"`
}

type Stats struct {
	TotalDocuments     int                    `json:"total_documents"`
	TotalChunks        int                    `json:"total_chunks"`
	TotalConversations int                    `json:"total_conversations"`
	DiskUsageMB        float64                `json:"disk_usage_mb"`
	VectorStoreStats   map[string]interface{} `json:"vector_store_stats"`
}
