package message

import (
	"context"
	"sync"

	"message-store/server/internal/model"
)

// InMemoryStore 是一个基于内存切片的消息存储实现。
// 下标一经分配永不改变：只追加、原地覆盖，不删除。
type InMemoryStore struct {
	mu       sync.Mutex
	messages []model.Message
}

func NewInMemoryStore() *InMemoryStore {
	// 重启即丢数据，进程内单实例共享。
	return &InMemoryStore{}
}

// Append 追加消息，返回新消息的下标。
func (s *InMemoryStore) Append(_ context.Context, msg model.Message) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg.Clone())
	return uint64(len(s.messages) - 1)
}

// Get 返回副本，避免调用方修改内部数据。
func (s *InMemoryStore) Get(_ context.Context, index uint64) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index >= uint64(len(s.messages)) {
		return model.Message{}, ErrNotFound
	}
	return s.messages[index].Clone(), nil
}

// Replace 原地覆盖，长度与其他下标不变。
func (s *InMemoryStore) Replace(_ context.Context, index uint64, msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index >= uint64(len(s.messages)) {
		return ErrNotFound
	}
	s.messages[index] = msg.Clone()
	return nil
}

func (s *InMemoryStore) Len(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.messages)
}

var _ Store = (*InMemoryStore)(nil)
