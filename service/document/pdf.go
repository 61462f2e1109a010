package document

import (
	"bytes"
	"context"
	"fmt"
	"pdf-chat-backend/model"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

type PDFProcessor struct {
	TextSplitter textsplitter.TextSplitter
}

var _ Processor = &PDFProcessor{}

func NewPDFProcessor(chunkSize, chunkOverlap int) *PDFProcessor {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = defaultChunkOverlap
	}

	textSplitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)

	return &PDFProcessor{
		TextSplitter: textSplitter,
	}
}

func (p *PDFProcessor) CanProcess(fileType model.FileType) bool {
	return fileType == model.FileTypePDF
}

// Process 按页加载 PDF 并切分，片段元数据包含 page 与 total_pages
func (p *PDFProcessor) Process(ctx context.Context, data []byte) (docs []schema.Document, err error) {
	// PDF 解析库遇到损坏文件可能 panic
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader := bytes.NewReader(data)
	loader := documentloaders.NewPDF(reader, int64(len(data)))

	docs, err = loader.LoadAndSplit(ctx, p.TextSplitter)
	if err != nil {
		return nil, fmt.Errorf("error loading and spliting pdf: %v", err)
	}

	return docs, nil
}
