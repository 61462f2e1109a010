package router

import (
	"pdf-chat-backend/config"
	"pdf-chat-backend/controller"
	"pdf-chat-backend/middleware"

	"github.com/gin-gonic/gin"
)

func Register(h *controller.Handler, cfg config.ServerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORSMiddleware(cfg.AllowOrigins))

	if cfg.MaxUploadBytes > 0 {
		// 不超过上传上限的文件完整保留在内存中
		r.MaxMultipartMemory = cfg.MaxUploadBytes
	}

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)

		api.POST("/upload", h.UploadDocument)
		api.POST("/chat", h.Chat)

		api.GET("/session/:id/messages", h.GetSessionMessages)
	}

	return r
}
