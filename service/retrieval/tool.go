package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

const (
	ToolName        = "retrieve"
	toolDescription = "Retrieve passages of the uploaded PDF that are related to a query."

	DefaultTopK = 3

	// NoDocumentMessage 会话没有文档索引时返回给模型的文本
	NoDocumentMessage = "No PDF found for this session."
)

var (
	ErrEmptyQuery       = errors.New("query must not be empty")
	ErrInvalidArguments = errors.New("invalid retrieve arguments")
)

// IndexLookup 按会话查找文档索引
type IndexLookup interface {
	Get(sessionID string) (vectorstores.VectorStore, bool)
}

// Arguments 模型发起 retrieve 调用时的参数
type Arguments struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

// Result 检索结果。Found 为 false 表示会话没有索引，与零命中区分。
type Result struct {
	Text   string
	Chunks []schema.Document
	Found  bool
}

type Tool struct {
	indexes IndexLookup
	topK    int
}

func NewTool(indexes IndexLookup, topK int) *Tool {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Tool{
		indexes: indexes,
		topK:    topK,
	}
}

// Retrieve 在会话索引中检索与 query 最相关的 topK 个片段，按相关度降序排列
func (t *Tool) Retrieve(ctx context.Context, sessionID, query string) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	index, ok := t.indexes.Get(sessionID)
	if !ok {
		return &Result{
			Text:   NoDocumentMessage,
			Chunks: []schema.Document{},
		}, nil
	}

	docs, err := index.SimilaritySearch(ctx, query, t.topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search session index: %w", err)
	}
	if docs == nil {
		docs = []schema.Document{}
	}

	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].Score > docs[j].Score
	})
	if len(docs) > t.topK {
		docs = docs[:t.topK]
	}

	return &Result{
		Text:   Serialize(docs),
		Chunks: docs,
		Found:  true,
	}, nil
}

// Definition 声明给模型的工具描述
func (t *Tool) Definition() llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        ToolName,
			Description: toolDescription,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Search query describing the information needed from the document.",
					},
					"session_id": map[string]any{
						"type":        "string",
						"description": "Session the document was uploaded in.",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}

// Call 工具分发入口。检索总是针对当前轮次的会话执行，模型给出的 session_id 仅做校验。
func (t *Tool) Call(ctx context.Context, sessionID, arguments string) (string, any, error) {
	args, err := ParseArguments(arguments)
	if err != nil {
		return "", nil, err
	}

	if args.SessionID != "" && args.SessionID != sessionID {
		slog.Warn("Ignoring session_id argument that does not match the current session",
			"session_id", sessionID,
			"argument_session_id", args.SessionID,
		)
	}

	result, err := t.Retrieve(ctx, sessionID, args.Query)
	if err != nil {
		return "", nil, err
	}

	slog.Debug("retrieved chunks",
		"session_id", sessionID,
		"found_index", result.Found,
		"chunks_num", len(result.Chunks),
	)

	return result.Text, result.Chunks, nil
}

func ParseArguments(raw string) (Arguments, error) {
	var args Arguments
	if strings.TrimSpace(raw) == "" {
		return args, ErrEmptyQuery
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return args, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return args, ErrEmptyQuery
	}
	return args, nil
}

// Serialize 拼接检索片段作为回答生成的上下文
func Serialize(docs []schema.Document) string {
	blocks := make([]string, 0, len(docs))
	for _, doc := range docs {
		blocks = append(blocks, fmt.Sprintf("Source: %s\nContent: %s", FormatSource(doc.Metadata), doc.PageContent))
	}
	return strings.Join(blocks, "\n\n")
}

// FormatSource 按键排序输出片段元数据，如 "page: 2, total_pages: 10"
func FormatSource(metadata map[string]any) string {
	if len(metadata) == 0 {
		return "unknown"
	}

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, metadata[k]))
	}
	return strings.Join(parts, ", ")
}
