package controller

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"pdf-chat-backend/response"
	"pdf-chat-backend/service/document"

	"github.com/gin-gonic/gin"
)

const MsgDocumentProcessed = "PDF processed successfully."

func (h *Handler) UploadDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		slog.Error(ErrGetUploadFile.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrGetUploadFile.Error(),
		})
		return
	}

	if h.maxUploadBytes > 0 && fileHeader.Size > h.maxUploadBytes {
		slog.Info(ErrFileTooLarge.Error(),
			"file_name", fileHeader.Filename,
			"file_size", fileHeader.Size,
		)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrFileTooLarge.Error(),
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		slog.Error(ErrGetUploadFile.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrGetUploadFile.Error(),
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		slog.Error(ErrGetUploadFile.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrGetUploadFile.Error(),
		})
		return
	}

	sessionID, err := h.documents.Upload(c.Request.Context(), fileHeader.Filename, data)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, document.ErrInvalidDocument) {
			status = http.StatusBadRequest
		}

		slog.Error(ErrProcessDocument.Error(),
			"file_name", fileHeader.Filename,
			"err", err,
		)
		c.AbortWithStatusJSON(status, response.Response{
			Msg: fmt.Sprintf("%s: %v", ErrProcessDocument, err),
		})
		return
	}

	c.JSON(http.StatusOK, response.Response{
		Msg: MsgDocumentProcessed,
		Data: response.UploadDocumentResponse{
			SessionID: sessionID,
		},
	})
}
