package session

import (
	"slices"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// Store 按会话保存对话历史，只追加不修改。
// 同一会话的并发轮次由调用方串行化。
type Store struct {
	mu            sync.RWMutex
	conversations map[string][]llms.MessageContent
}

func NewStore() *Store {
	return &Store{
		conversations: make(map[string][]llms.MessageContent),
	}
}

func (s *Store) Append(sessionID string, messages ...llms.MessageContent) {
	if len(messages) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range messages {
		s.conversations[sessionID] = append(s.conversations[sessionID], cloneMessage(msg))
	}
}

// Get 返回历史的副本，未知会话返回空切片
func (s *Store) Get(sessionID string) []llms.MessageContent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.conversations[sessionID]
	result := make([]llms.MessageContent, 0, len(history))
	for _, msg := range history {
		result = append(result, cloneMessage(msg))
	}
	return result
}

func (s *Store) Len(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations[sessionID])
}

func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, sessionID)
}

func cloneMessage(msg llms.MessageContent) llms.MessageContent {
	return llms.MessageContent{
		Role:  msg.Role,
		Parts: slices.Clone(msg.Parts),
	}
}
