package model

type UploadStatus string

const (
	UploadQueued    UploadStatus = "queued"
	UploadUploading UploadStatus = "uploading"
	UploadSuccess   UploadStatus = "success"
	UploadError     UploadStatus = "error"
)

// Terminal reports whether no further transition is allowed.
func (s UploadStatus) Terminal() bool {
	return s == UploadSuccess || s == UploadError
}

type UploadTask struct {
	FileName         string       `json:"file_name"`
	Status           UploadStatus `json:"status"`
	ResultDocumentID *int64       `json:"result_document_id,omitempty"`
	ErrorDetail      string       `json:"error_detail,omitempty"`
}
