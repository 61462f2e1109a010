package chat

import (
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// IncludeInSynthesis 判断消息是否进入回答生成的对话：
// 保留用户、系统消息以及不带工具调用的助手消息，丢弃工具调用请求和工具结果。
func IncludeInSynthesis(msg llms.MessageContent) bool {
	switch msg.Role {
	case llms.ChatMessageTypeHuman, llms.ChatMessageTypeSystem:
		return true
	case llms.ChatMessageTypeAI:
		return !HasToolCalls(msg)
	default:
		return false
	}
}

func HasToolCalls(msg llms.MessageContent) bool {
	return len(ToolCalls(msg)) > 0
}

func ToolCalls(msg llms.MessageContent) []llms.ToolCall {
	var calls []llms.ToolCall
	for _, part := range msg.Parts {
		if call, ok := part.(llms.ToolCall); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

// TextOf 拼接消息中的文本部分，工具结果取其内容
func TextOf(msg llms.MessageContent) string {
	var b strings.Builder
	for _, part := range msg.Parts {
		switch p := part.(type) {
		case llms.TextContent:
			b.WriteString(p.Text)
		case llms.ToolCallResponse:
			b.WriteString(p.Content)
		}
	}
	return b.String()
}

// TrailingToolRun 返回历史末尾连续的工具消息
func TrailingToolRun(history []llms.MessageContent) []llms.MessageContent {
	start := len(history)
	for start > 0 && history[start-1].Role == llms.ChatMessageTypeTool {
		start--
	}
	return history[start:]
}

func toolResponseMessage(call llms.ToolCall, content string) llms.MessageContent {
	return llms.MessageContent{
		Role: llms.ChatMessageTypeTool,
		Parts: []llms.ContentPart{
			llms.ToolCallResponse{
				ToolCallID: call.ID,
				Name:       call.FunctionCall.Name,
				Content:    content,
			},
		},
	}
}

func toolCallMessage(calls []llms.ToolCall) llms.MessageContent {
	parts := make([]llms.ContentPart, 0, len(calls))
	for _, call := range calls {
		parts = append(parts, call)
	}
	return llms.MessageContent{
		Role:  llms.ChatMessageTypeAI,
		Parts: parts,
	}
}
