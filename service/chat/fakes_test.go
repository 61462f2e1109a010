package chat

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

type llmCall struct {
	messages []llms.MessageContent
	opts     llms.CallOptions
}

// scriptedLLM 按调用序号返回预设结果
type scriptedLLM struct {
	mu      sync.Mutex
	calls   []llmCall
	respond func(n int, messages []llms.MessageContent, opts llms.CallOptions) (*llms.ContentResponse, error)
}

var _ llms.Model = &scriptedLLM{}

func (m *scriptedLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	m.mu.Lock()
	m.calls = append(m.calls, llmCall{messages: messages, opts: opts})
	n := len(m.calls) - 1
	m.mu.Unlock()

	return m.respond(n, messages, opts)
}

func (m *scriptedLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *scriptedLLM) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: text}},
	}
}

func toolCallResponse(calls ...llms.ToolCall) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{ToolCalls: calls}},
	}
}

func retrieveCall(id, arguments string) llms.ToolCall {
	return llms.ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      "retrieve",
			Arguments: arguments,
		},
	}
}

type fakeSessions map[string]bool

func (f fakeSessions) Exists(sessionID string) bool {
	return f[sessionID]
}

// recordingTool 记录收到的参数并返回固定文本
type recordingTool struct {
	mu        sync.Mutex
	arguments []string
	sessions  []string
	text      func(arguments string) string
	err       error
}

func (r *recordingTool) handle(ctx context.Context, sessionID, arguments string) (string, any, error) {
	r.mu.Lock()
	r.arguments = append(r.arguments, arguments)
	r.sessions = append(r.sessions, sessionID)
	r.mu.Unlock()

	if r.err != nil {
		return "", nil, r.err
	}
	return r.text(arguments), nil, nil
}

func retrieveDefinition() llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        "retrieve",
			Description: "Retrieve information related to a query.",
		},
	}
}

// bagOfWordsEmbedder 词哈希向量，供端到端测试使用
type bagOfWordsEmbedder struct{}

func (bagOfWordsEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vectors = append(vectors, hashEmbed(text))
	}
	return vectors, nil
}

func (bagOfWordsEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return hashEmbed(text), nil
}

func hashEmbed(text string) []float32 {
	v := make([]float32, 256)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(word, ".,?!")))
		v[h.Sum32()%256]++
	}
	return v
}

func systemText(msg llms.MessageContent) string {
	if msg.Role != llms.ChatMessageTypeSystem {
		return ""
	}
	return TextOf(msg)
}
