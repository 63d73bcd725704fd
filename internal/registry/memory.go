package registry

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore 将记录保存在进程内存中，主要用于测试。
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemoryStore 创建空的内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, namespace, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bucket(namespace)[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Create(_ context.Context, namespace, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.bucket(namespace)
	if _, exists := bucket[key]; exists {
		return conflict(namespace, key)
	}
	bucket[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, namespace, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[namespace][key]
	if !ok {
		return nil, notFound(namespace, key)
	}
	return append([]byte(nil), value...), nil
}

func (s *MemoryStore) List(_ context.Context, namespace string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedRecords(s.data[namespace]), nil
}

func (s *MemoryStore) Delete(_ context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[namespace], key)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, namespace)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) bucket(namespace string) map[string][]byte {
	bucket, ok := s.data[namespace]
	if !ok {
		bucket = make(map[string][]byte)
		s.data[namespace] = bucket
	}
	return bucket
}

func sortedRecords(bucket map[string][]byte) []Record {
	records := make([]Record, 0, len(bucket))
	for key, value := range bucket {
		records = append(records, Record{Key: key, Value: append([]byte(nil), value...)})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records
}
