package chat

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"pdf-chat-backend/config"
	"pdf-chat-backend/service/session"
	"pdf-chat-backend/utils"
	"strings"
	"text/template"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// NoResponse 轮次结束时没有可返回文本的兜底回答
const NoResponse = "No response."

var (
	ErrEmptyMessage  = errors.New("message must not be empty")
	ErrUpstream      = errors.New("upstream capability failed")
	ErrEmptyResponse = errors.New("model returned no choices")
	ErrUnknownTool   = errors.New("model requested an unknown tool")
)

var (
	//go:embed prompts/decide.txt
	decidePrompt string

	//go:embed prompts/generate.txt
	generatePrompt string

	decideTemplate   = template.Must(template.New("decide").Parse(decidePrompt))
	generateTemplate = template.Must(template.New("generate").Parse(generatePrompt))
)

// SessionChecker 判断会话是否已上传文档
type SessionChecker interface {
	Exists(sessionID string) bool
}

// HistoryStore 会话对话历史
type HistoryStore interface {
	Get(sessionID string) []llms.MessageContent
	Append(sessionID string, messages ...llms.MessageContent)
}

type state int

const (
	stateDeciding state = iota
	stateAwaitingTool
	stateSynthesizing
	stateDone
)

func (s state) String() string {
	switch s {
	case stateDeciding:
		return "deciding"
	case stateAwaitingTool:
		return "awaiting_tool"
	case stateSynthesizing:
		return "synthesizing"
	case stateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Agent 对话编排状态机：每轮决定直接回答、调用工具或基于工具结果生成回答
type Agent struct {
	llm      llms.Model
	sessions SessionChecker
	history  HistoryStore
	tools    *ToolSet
}

// Reply 一轮对话的结果
type Reply struct {
	Answer string

	// 本轮检索到的文档片段
	Sources []schema.Document

	ToolCalls int
}

// turn 单轮对话的工作状态，只有整轮成功才写回 HistoryStore
type turn struct {
	sessionID string
	messages  []llms.MessageContent
	start     int
	sources   []schema.Document
	toolCalls int
}

func NewAgent(llm llms.Model, sessions SessionChecker, history HistoryStore, tools *ToolSet) *Agent {
	if tools == nil {
		tools = NewToolSet()
	}
	return &Agent{
		llm:      llm,
		sessions: sessions,
		history:  history,
		tools:    tools,
	}
}

// NewLLM 创建 OpenAI 兼容的对话模型客户端
func NewLLM(cfg config.ModelConfig) (*openai.LLM, error) {
	llm, err := openai.New(
		openai.WithModel(cfg.ChatModel),
		openai.WithToken(cfg.APIKey),
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithHTTPClient(utils.NewHTTPClient(
			utils.WithTimeout(cfg.Timeout),
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %v", err)
	}
	return llm, nil
}

// Call 处理一轮用户消息。失败时不向历史追加任何消息。
func (a *Agent) Call(ctx context.Context, sessionID, query string) (*Reply, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyMessage
	}
	if !a.sessions.Exists(sessionID) {
		return nil, session.ErrSessionNotFound
	}

	messages := a.history.Get(sessionID)
	t := &turn{
		sessionID: sessionID,
		messages:  append(messages, llms.TextParts(llms.ChatMessageTypeHuman, query)),
		start:     len(messages),
	}

	if err := a.run(ctx, t); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	a.history.Append(sessionID, t.messages[t.start:]...)

	return &Reply{
		Answer:    finalAnswer(t.messages),
		Sources:   t.sources,
		ToolCalls: t.toolCalls,
	}, nil
}

func (a *Agent) run(ctx context.Context, t *turn) error {
	current := stateDeciding
	for current != stateDone {
		var (
			next state
			err  error
		)

		switch current {
		case stateDeciding:
			next, err = a.decide(ctx, t)
		case stateAwaitingTool:
			next, err = a.executeTools(ctx, t)
		case stateSynthesizing:
			next, err = a.synthesize(ctx, t)
		default:
			return fmt.Errorf("unexpected agent state: %s", current)
		}
		if err != nil {
			slog.Error("agent turn failed",
				"session_id", t.sessionID,
				"state", current.String(),
				"err", err,
			)
			return err
		}

		slog.Debug("agent state transition",
			"session_id", t.sessionID,
			"from", current.String(),
			"to", next.String(),
		)
		current = next
	}
	return nil
}

// decide 携带工具声明调用模型，由模型决定直接回答或发起工具调用
func (a *Agent) decide(ctx context.Context, t *turn) (state, error) {
	directive, err := render(decideTemplate, struct{ SessionID string }{t.sessionID})
	if err != nil {
		return stateDone, err
	}

	prompt := make([]llms.MessageContent, 0, len(t.messages)+1)
	prompt = append(prompt, llms.TextParts(llms.ChatMessageTypeSystem, directive))
	prompt = append(prompt, t.messages...)

	var opts []llms.CallOption
	if defs := a.tools.Definitions(); len(defs) > 0 {
		opts = append(opts, llms.WithTools(defs))
	}

	choice, err := a.generate(ctx, prompt, opts...)
	if err != nil {
		return stateDone, err
	}

	if len(choice.ToolCalls) > 0 {
		t.messages = append(t.messages, toolCallMessage(choice.ToolCalls))
		return stateAwaitingTool, nil
	}

	t.messages = append(t.messages, llms.TextParts(llms.ChatMessageTypeAI, choice.Content))
	return stateDone, nil
}

// executeTools 依次执行上一条助手消息中的全部工具调用
func (a *Agent) executeTools(ctx context.Context, t *turn) (state, error) {
	calls := ToolCalls(t.messages[len(t.messages)-1])
	for _, call := range calls {
		if call.FunctionCall == nil {
			return stateDone, fmt.Errorf("tool call %s has no function", call.ID)
		}

		handler, ok := a.tools.Lookup(call.FunctionCall.Name)
		if !ok {
			return stateDone, fmt.Errorf("%w: %s", ErrUnknownTool, call.FunctionCall.Name)
		}

		text, artifact, err := handler(ctx, t.sessionID, call.FunctionCall.Arguments)
		if err != nil {
			return stateDone, fmt.Errorf("tool %s failed: %w", call.FunctionCall.Name, err)
		}

		if docs, ok := artifact.([]schema.Document); ok {
			t.sources = append(t.sources, docs...)
		}
		t.toolCalls++
		t.messages = append(t.messages, toolResponseMessage(call, text))
	}
	return stateSynthesizing, nil
}

// synthesize 以末尾连续的工具结果为上下文，不带工具生成最终回答
func (a *Agent) synthesize(ctx context.Context, t *turn) (state, error) {
	toolMessages := TrailingToolRun(t.messages)
	contents := make([]string, 0, len(toolMessages))
	for _, msg := range toolMessages {
		contents = append(contents, TextOf(msg))
	}

	systemPrompt, err := render(generateTemplate, struct{ Context string }{strings.Join(contents, "\n\n")})
	if err != nil {
		return stateDone, err
	}

	prompt := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt)}
	for _, msg := range t.messages {
		if IncludeInSynthesis(msg) {
			prompt = append(prompt, msg)
		}
	}

	choice, err := a.generate(ctx, prompt)
	if err != nil {
		return stateDone, err
	}

	t.messages = append(t.messages, llms.TextParts(llms.ChatMessageTypeAI, choice.Content))
	return stateDone, nil
}

func (a *Agent) generate(ctx context.Context, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentChoice, error) {
	resp, err := a.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("llm call error: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return nil, ErrEmptyResponse
	}
	return resp.Choices[0], nil
}

func finalAnswer(messages []llms.MessageContent) string {
	if len(messages) == 0 {
		return NoResponse
	}
	if text := TextOf(messages[len(messages)-1]); text != "" {
		return text
	}
	return NoResponse
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %v", tmpl.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}
