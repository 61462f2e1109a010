package document

import (
	"context"
	"pdf-chat-backend/model"

	"github.com/tmc/langchaingo/schema"
)

// Processor 文档处理器：将上传的文件内容解析并切分为文本片段
type Processor interface {
	// 判断是否支持传入的文件类型
	CanProcess(fileType model.FileType) bool

	// 解析并切分文档
	Process(ctx context.Context, data []byte) ([]schema.Document, error)
}

// DefaultProcessors 返回 PDF 与 Markdown/Text 处理器
func DefaultProcessors(chunkSize, chunkOverlap int) []Processor {
	return []Processor{
		NewPDFProcessor(chunkSize, chunkOverlap),
		NewMarkdownProcessor(chunkSize, chunkOverlap),
	}
}
