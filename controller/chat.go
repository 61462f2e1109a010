package controller

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"pdf-chat-backend/model"
	"pdf-chat-backend/request"
	"pdf-chat-backend/response"
	"pdf-chat-backend/service/chat"
	"pdf-chat-backend/service/session"

	"github.com/gin-gonic/gin"
	"github.com/tmc/langchaingo/schema"
)

func (h *Handler) Chat(c *gin.Context) {
	var req request.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error(ErrParseRequest.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrParseRequest.Error(),
		})
		return
	}

	reply, err := h.agent.Call(c.Request.Context(), req.SessionID, req.Message)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrSessionNotFound):
		slog.Info(ErrSessionNotFound.Error(), "session_id", req.SessionID)
		c.AbortWithStatusJSON(http.StatusNotFound, response.Response{
			Msg: ErrSessionNotFound.Error(),
		})
		return
	case errors.Is(err, chat.ErrEmptyMessage):
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: err.Error(),
		})
		return
	default:
		slog.Error(ErrCallAgent.Error(), "session_id", req.SessionID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: fmt.Sprintf("%s: %v", ErrCallAgent, err),
		})
		return
	}

	c.JSON(http.StatusOK, response.Response{
		Data: response.ChatResponse{
			Response: reply.Answer,
			Sources:  toSources(reply.Sources),
		},
	})
}

func toSources(docs []schema.Document) []model.Source {
	if len(docs) == 0 {
		return nil
	}
	sources := make([]model.Source, 0, len(docs))
	for _, doc := range docs {
		sources = append(sources, model.Source{
			Content:  doc.PageContent,
			Metadata: doc.Metadata,
			Score:    doc.Score,
		})
	}
	return sources
}
