package store

import (
	"context"
	"sync"
)

// Memory 是进程内存储（测试与 --store=memory 使用），重启即丢失。
type Memory struct {
	slots
	mu sync.Mutex
	m  map[string][]byte
}

func NewMemory() *Memory {
	s := &Memory{m: map[string][]byte{}}
	s.slots = slots{kv: s}
	return s
}

func (s *Memory) get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (s *Memory) put(_ context.Context, key string, b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = append([]byte(nil), b...)
	return nil
}

func (s *Memory) Close() error { return nil }
