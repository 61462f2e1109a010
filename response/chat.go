package response

import "pdf-chat-backend/model"

type ChatResponse struct {
	Response string `json:"response"`

	// 本轮回答引用的文档片段
	Sources []model.Source `json:"sources,omitempty"`
}
