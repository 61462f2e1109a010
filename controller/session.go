package controller

import (
	"log/slog"
	"net/http"
	"pdf-chat-backend/model"
	"pdf-chat-backend/response"
	"pdf-chat-backend/service/chat"

	"github.com/gin-gonic/gin"
	"github.com/tmc/langchaingo/llms"
)

// GetSessionMessages 返回会话中已提交的消息
func (h *Handler) GetSessionMessages(c *gin.Context) {
	sessionID := c.Param("id")
	if !h.sessions.Exists(sessionID) {
		slog.Info(ErrSessionNotFound.Error(), "session_id", sessionID)
		c.AbortWithStatusJSON(http.StatusNotFound, response.Response{
			Msg: ErrSessionNotFound.Error(),
		})
		return
	}

	history := h.history.Get(sessionID)
	resp := response.GetSessionMessagesResponse{
		SessionID: sessionID,
		Messages:  make([]model.Message, 0, len(history)),
	}
	for _, msg := range history {
		resp.Messages = append(resp.Messages, toMessage(msg))
	}

	c.JSON(http.StatusOK, response.Response{
		Data: resp,
	})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, response.Response{
		Data: response.HealthResponse{
			Status:   "ok",
			Sessions: h.sessions.Len(),
		},
	})
}

func toMessage(msg llms.MessageContent) model.Message {
	m := model.Message{
		Role:    string(msg.Role),
		Content: chat.TextOf(msg),
	}
	for _, call := range chat.ToolCalls(msg) {
		tc := model.ToolCall{ID: call.ID}
		if call.FunctionCall != nil {
			tc.Name = call.FunctionCall.Name
			tc.Arguments = call.FunctionCall.Arguments
		}
		m.ToolCalls = append(m.ToolCalls, tc)
	}
	for _, part := range msg.Parts {
		if resp, ok := part.(llms.ToolCallResponse); ok {
			m.ToolCallID = resp.ToolCallID
			break
		}
	}
	return m
}
