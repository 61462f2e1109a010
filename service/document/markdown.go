package document

import (
	"bytes"
	"context"
	"fmt"
	"pdf-chat-backend/model"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

// 匹配形如 "# xxx ## xxx" 的chunk
var headerOnlyRegex = regexp.MustCompile(`^\s*(?:#{1,6}\s+.+\n?)+\s*$`)

// MarkdownProcessor Markdown文件处理器，兼容Text文件
type MarkdownProcessor struct {
	TextSplitter textsplitter.TextSplitter
}

var _ Processor = &MarkdownProcessor{}

func NewMarkdownProcessor(chunkSize, chunkOverlap int) *MarkdownProcessor {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = defaultChunkOverlap
	}

	textSplitter := textsplitter.NewMarkdownTextSplitter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithHeadingHierarchy(true), // 保留父级标题信息
		textsplitter.WithSecondSplitter(textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		)),
	)

	return &MarkdownProcessor{
		TextSplitter: textSplitter,
	}
}

func (p *MarkdownProcessor) CanProcess(fileType model.FileType) bool {
	return fileType == model.FileTypeMarkdown || fileType == model.FileTypeText
}

func (p *MarkdownProcessor) Process(ctx context.Context, data []byte) ([]schema.Document, error) {
	reader := bytes.NewReader(data)
	loader := documentloaders.NewText(reader)

	docs, err := loader.LoadAndSplit(ctx, p.TextSplitter)
	if err != nil {
		return nil, fmt.Errorf("error loading and spliting markdown: %v", err)
	}

	return filterStandaloneHeaders(docs), nil
}

// filterStandaloneHeaders 过滤只有孤立标题的chunk
func filterStandaloneHeaders(docs []schema.Document) []schema.Document {
	var filteredDocs []schema.Document
	for _, doc := range docs {
		content := strings.TrimSpace(doc.PageContent)
		if content == "" {
			continue
		}

		if headerOnlyRegex.MatchString(content) {
			continue
		}

		filteredDocs = append(filteredDocs, doc)
	}
	return filteredDocs
}
