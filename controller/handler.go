package controller

import (
	"context"
	"pdf-chat-backend/service/chat"

	"github.com/tmc/langchaingo/llms"
)

type DocumentUploader interface {
	Upload(ctx context.Context, fileName string, data []byte) (string, error)
}

type ChatAgent interface {
	Call(ctx context.Context, sessionID, query string) (*chat.Reply, error)
}

type SessionIndex interface {
	Exists(sessionID string) bool
	Len() int
}

type HistoryReader interface {
	Get(sessionID string) []llms.MessageContent
}

// Handler 持有各接口依赖的服务
type Handler struct {
	documents      DocumentUploader
	agent          ChatAgent
	sessions       SessionIndex
	history        HistoryReader
	maxUploadBytes int64
}

func NewHandler(documents DocumentUploader, agent ChatAgent, sessions SessionIndex, history HistoryReader, maxUploadBytes int64) *Handler {
	return &Handler{
		documents:      documents,
		agent:          agent,
		sessions:       sessions,
		history:        history,
		maxUploadBytes: maxUploadBytes,
	}
}
