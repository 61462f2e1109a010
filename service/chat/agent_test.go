package chat

import (
	"context"
	"errors"
	"pdf-chat-backend/service/session"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

const testSession = "session-1"

func newTestAgent(t *testing.T, llm llms.Model, tool *recordingTool) (*Agent, *session.Store) {
	t.Helper()
	tools := NewToolSet()
	if tool != nil {
		require.NoError(t, tools.Register(retrieveDefinition(), tool.handle))
	}
	store := session.NewStore()
	return NewAgent(llm, fakeSessions{testSession: true}, store, tools), store
}

func contextTool(text string) *recordingTool {
	return &recordingTool{text: func(string) string { return text }}
}

func TestAgent_RespondDirectly(t *testing.T) {
	llm := &scriptedLLM{respond: func(n int, _ []llms.MessageContent, _ llms.CallOptions) (*llms.ContentResponse, error) {
		return textResponse("Hello! Ask me about your document."), nil
	}}
	tool := contextTool("unused")
	agent, store := newTestAgent(t, llm, tool)

	reply, err := agent.Call(context.Background(), testSession, "hi")
	require.NoError(t, err)

	assert.Equal(t, "Hello! Ask me about your document.", reply.Answer)
	assert.Equal(t, 0, reply.ToolCalls)
	assert.Equal(t, 1, llm.callCount())
	assert.Empty(t, tool.arguments)

	history := store.Get(testSession)
	require.Len(t, history, 2)
	assert.Equal(t, llms.ChatMessageTypeHuman, history[0].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, history[1].Role)

	decideCall := llm.calls[0]
	require.Len(t, decideCall.opts.Tools, 1)
	assert.Equal(t, "retrieve", decideCall.opts.Tools[0].Function.Name)
	assert.Contains(t, systemText(decideCall.messages[0]), testSession)
	assert.Equal(t, "hi", TextOf(decideCall.messages[len(decideCall.messages)-1]))
}

func TestAgent_ToolRoundAddsTwoMessagesBeforeSynthesis(t *testing.T) {
	llm := &scriptedLLM{respond: func(n int, _ []llms.MessageContent, _ llms.CallOptions) (*llms.ContentResponse, error) {
		return toolCallResponse(retrieveCall("call_42", `{"query":"capital"}`)), nil
	}}
	agent, _ := newTestAgent(t, llm, contextTool("Source: page: 1\nContent: Paris"))

	tr := &turn{
		sessionID: testSession,
		messages:  []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "capital?")},
	}
	before := len(tr.messages)

	next, err := agent.decide(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, stateAwaitingTool, next)

	next, err = agent.executeTools(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, stateSynthesizing, next)

	require.Len(t, tr.messages, before+2)
	request := tr.messages[before]
	result := tr.messages[before+1]

	calls := ToolCalls(request)
	require.Len(t, calls, 1)
	require.Equal(t, llms.ChatMessageTypeTool, result.Role)
	response, ok := result.Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, calls[0].ID, response.ToolCallID)
	assert.Equal(t, "call_42", response.ToolCallID)
	assert.Equal(t, "retrieve", response.Name)
}

func TestAgent_SynthesisPrompt(t *testing.T) {
	llm := &scriptedLLM{respond: func(n int, _ []llms.MessageContent, _ llms.CallOptions) (*llms.ContentResponse, error) {
		if n == 0 {
			return toolCallResponse(retrieveCall("call_1", `{"query":"capital of France"}`)), nil
		}
		return textResponse("Paris."), nil
	}}
	tool := contextTool("Source: page: 1\nContent: Paris is the capital of France.")
	agent, store := newTestAgent(t, llm, tool)

	reply, err := agent.Call(context.Background(), testSession, "What is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris.", reply.Answer)
	assert.Equal(t, 1, reply.ToolCalls)
	assert.Equal(t, []string{testSession}, tool.sessions)

	require.Equal(t, 2, llm.callCount())
	synth := llm.calls[1]
	assert.Empty(t, synth.opts.Tools)

	system := systemText(synth.messages[0])
	assert.True(t, strings.HasPrefix(system, "You are an assistant for question-answering tasks."))
	assert.Contains(t, system, "Paris is the capital of France.")

	for _, msg := range synth.messages {
		assert.NotEqual(t, llms.ChatMessageTypeTool, msg.Role)
		assert.False(t, HasToolCalls(msg))
	}
	assert.Equal(t, "What is the capital of France?", TextOf(synth.messages[len(synth.messages)-1]))

	history := store.Get(testSession)
	require.Len(t, history, 4)
	assert.Equal(t, llms.ChatMessageTypeHuman, history[0].Role)
	assert.True(t, HasToolCalls(history[1]))
	assert.Equal(t, llms.ChatMessageTypeTool, history[2].Role)
	assert.Equal(t, "Paris.", TextOf(history[3]))
}

func TestAgent_MultipleToolCallsInOneTurn(t *testing.T) {
	llm := &scriptedLLM{respond: func(n int, _ []llms.MessageContent, _ llms.CallOptions) (*llms.ContentResponse, error) {
		if n == 0 {
			return toolCallResponse(
				retrieveCall("call_a", `{"query":"alpha"}`),
				retrieveCall("call_b", `{"query":"beta"}`),
			), nil
		}
		return textResponse("combined"), nil
	}}
	tool := &recordingTool{text: func(arguments string) string { return "result for " + arguments }}
	agent, store := newTestAgent(t, llm, tool)

	_, err := agent.Call(context.Background(), testSession, "alpha and beta?")
	require.NoError(t, err)

	assert.Len(t, tool.arguments, 2)
	system := systemText(llm.calls[1].messages[0])
	assert.Contains(t, system, `result for {"query":"alpha"}`)
	assert.Contains(t, system, `result for {"query":"beta"}`)

	history := store.Get(testSession)
	require.Len(t, history, 5)
	assert.Len(t, TrailingToolRun(history[:4]), 2)
}

func TestAgent_SynthesisUsesOnlyCurrentTurnToolResults(t *testing.T) {
	llm := &scriptedLLM{respond: func(n int, _ []llms.MessageContent, _ llms.CallOptions) (*llms.ContentResponse, error) {
		if n%2 == 0 {
			return toolCallResponse(retrieveCall("call", `{"query":"q"}`)), nil
		}
		return textResponse("answer"), nil
	}}
	results := []string{"first turn context", "second turn context"}
	calls := 0
	tool := &recordingTool{text: func(string) string {
		text := results[calls]
		calls++
		return text
	}}
	agent, _ := newTestAgent(t, llm, tool)

	_, err := agent.Call(context.Background(), testSession, "question one")
	require.NoError(t, err)
	_, err = agent.Call(context.Background(), testSession, "question two")
	require.NoError(t, err)

	require.Equal(t, 4, llm.callCount())
	system := systemText(llm.calls[3].messages[0])
	assert.Contains(t, system, "second turn context")
	assert.NotContains(t, system, "first turn context")

	// 前一轮的用户消息与普通回答保留在生成对话中
	var texts []string
	for _, msg := range llm.calls[3].messages[1:] {
		texts = append(texts, TextOf(msg))
	}
	assert.Equal(t, []string{"question one", "answer", "question two"}, texts)
}

func TestAgent_FailedSynthesisIsAtomic(t *testing.T) {
	llm := &scriptedLLM{respond: func(n int, _ []llms.MessageContent, _ llms.CallOptions) (*llms.ContentResponse, error) {
		if n == 0 {
			return textResponse("earlier answer"), nil
		}
		if n == 1 {
			return toolCallResponse(retrieveCall("call_1", `{"query":"q"}`)), nil
		}
		return nil, errors.New("model unavailable")
	}}
	agent, store := newTestAgent(t, llm, contextTool("context"))

	_, err := agent.Call(context.Background(), testSession, "first")
	require.NoError(t, err)
	before := store.Get(testSession)

	_, err = agent.Call(context.Background(), testSession, "second")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "model unavailable")

	assert.Equal(t, before, store.Get(testSession))
}

func TestAgent_ToolFailureIsAtomic(t *testing.T) {
	llm := &scriptedLLM{respond: func(n int, _ []llms.MessageContent, _ llms.CallOptions) (*llms.ContentResponse, error) {
		return toolCallResponse(retrieveCall("call_1", `{"query":"q"}`)), nil
	}}
	tool := &recordingTool{err: errors.New("index unavailable")}
	agent, store := newTestAgent(t, llm, tool)

	_, err := agent.Call(context.Background(), testSession, "question")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, 0, len(store.Get(testSession)))
	assert.Equal(t, 1, llm.callCount())
}

func TestAgent_UnknownTool(t *testing.T) {
	llm := &scriptedLLM{respond: func(n int, _ []llms.MessageContent, _ llms.CallOptions) (*llms.ContentResponse, error) {
		return toolCallResponse(llms.ToolCall{
			ID:           "call_1",
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: "web_search", Arguments: `{}`},
		}), nil
	}}
	agent, store := newTestAgent(t, llm, contextTool("context"))

	_, err := agent.Call(context.Background(), testSession, "question")
	assert.ErrorIs(t, err, ErrUnknownTool)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Empty(t, store.Get(testSession))
}

func TestAgent_SessionNotFound(t *testing.T) {
	llm := &scriptedLLM{respond: func(int, []llms.MessageContent, llms.CallOptions) (*llms.ContentResponse, error) {
		return textResponse("should not be called"), nil
	}}
	agent, store := newTestAgent(t, llm, contextTool("context"))

	_, err := agent.Call(context.Background(), "abc", "hello")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	assert.NotErrorIs(t, err, ErrUpstream)
	assert.Equal(t, 0, llm.callCount())
	assert.Equal(t, 0, store.Len("abc"))
}

func TestAgent_EmptyMessage(t *testing.T) {
	llm := &scriptedLLM{}
	agent, store := newTestAgent(t, llm, nil)

	_, err := agent.Call(context.Background(), testSession, "  \n")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Equal(t, 0, store.Len(testSession))
}

func TestAgent_EmptyModelOutput(t *testing.T) {
	t.Run("no choices", func(t *testing.T) {
		llm := &scriptedLLM{respond: func(int, []llms.MessageContent, llms.CallOptions) (*llms.ContentResponse, error) {
			return &llms.ContentResponse{}, nil
		}}
		agent, store := newTestAgent(t, llm, nil)

		_, err := agent.Call(context.Background(), testSession, "hello")
		assert.ErrorIs(t, err, ErrEmptyResponse)
		assert.Equal(t, 0, store.Len(testSession))
	})

	t.Run("empty text falls back", func(t *testing.T) {
		llm := &scriptedLLM{respond: func(int, []llms.MessageContent, llms.CallOptions) (*llms.ContentResponse, error) {
			return textResponse(""), nil
		}}
		agent, _ := newTestAgent(t, llm, nil)

		reply, err := agent.Call(context.Background(), testSession, "hello")
		require.NoError(t, err)
		assert.Equal(t, NoResponse, reply.Answer)
	})
}

func TestAgent_NoToolsRegistered(t *testing.T) {
	llm := &scriptedLLM{respond: func(int, []llms.MessageContent, llms.CallOptions) (*llms.ContentResponse, error) {
		return textResponse("direct"), nil
	}}
	agent, _ := newTestAgent(t, llm, nil)

	_, err := agent.Call(context.Background(), testSession, "hello")
	require.NoError(t, err)
	assert.Empty(t, llm.calls[0].opts.Tools)
}

func TestAgent_CancelledContext(t *testing.T) {
	llm := &scriptedLLM{respond: func(int, []llms.MessageContent, llms.CallOptions) (*llms.ContentResponse, error) {
		return nil, context.Canceled
	}}
	agent, store := newTestAgent(t, llm, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := agent.Call(ctx, testSession, "hello")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, store.Len(testSession))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "deciding", stateDeciding.String())
	assert.Equal(t, "awaiting_tool", stateAwaitingTool.String())
	assert.Equal(t, "synthesizing", stateSynthesizing.String())
	assert.Equal(t, "done", stateDone.String())
	assert.Equal(t, "state(9)", state(9).String())
}
