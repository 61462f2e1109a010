package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
)

var ErrDuplicateTool = errors.New("tool already registered")

// ToolHandler 执行一次工具调用，返回给模型的文本和结构化结果
type ToolHandler func(ctx context.Context, sessionID, arguments string) (string, any, error)

// ToolSet 工具名到处理函数的分发表
type ToolSet struct {
	definitions []llms.Tool
	handlers    map[string]ToolHandler
}

func NewToolSet() *ToolSet {
	return &ToolSet{
		handlers: make(map[string]ToolHandler),
	}
}

func (s *ToolSet) Register(definition llms.Tool, handler ToolHandler) error {
	if definition.Function == nil {
		return fmt.Errorf("tool definition has no function")
	}

	name := definition.Function.Name
	if _, ok := s.handlers[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}

	s.definitions = append(s.definitions, definition)
	s.handlers[name] = handler
	return nil
}

func (s *ToolSet) Definitions() []llms.Tool {
	return s.definitions
}

func (s *ToolSet) Lookup(name string) (ToolHandler, bool) {
	handler, ok := s.handlers[name]
	return handler, ok
}
