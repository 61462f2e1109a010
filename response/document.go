package response

type UploadDocumentResponse struct {
	SessionID string `json:"session_id"`
}
