package request

type ChatRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Message   string `json:"message"`
}
