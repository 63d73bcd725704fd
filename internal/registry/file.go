package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore 将记录保存到单个 JSON 文件，每次写入都先写临时文件再重命名。
type FileStore struct {
	mu   sync.Mutex
	path string
	data map[string]map[string]string
}

// NewFileStore 加载 path，必要时创建所在目录。
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("注册表文件路径为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建注册表目录失败: %w", err)
	}
	store := &FileStore{path: path, data: make(map[string]map[string]string)}
	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return store, nil
	case err != nil:
		return nil, storageFailure(err, "读取注册表文件失败")
	}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &store.data); err != nil {
			return nil, storageFailure(err, "解析注册表文件失败")
		}
	}
	return store, nil
}

// Put 写入记录并重写文件。
func (s *FileStore) Put(_ context.Context, namespace, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bucket(namespace)[key] = string(value)
	return s.flush()
}

// Create 写入新记录，键已存在时返回 CodeConflict。
func (s *FileStore) Create(_ context.Context, namespace, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.bucket(namespace)
	if _, exists := bucket[key]; exists {
		return conflict(namespace, key)
	}
	bucket[key] = string(value)
	return s.flush()
}

func (s *FileStore) Get(_ context.Context, namespace, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.data[namespace][key]
	if !ok {
		return nil, notFound(namespace, key)
	}
	return []byte(value), nil
}

func (s *FileStore) List(_ context.Context, namespace string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := make(map[string][]byte, len(s.data[namespace]))
	for key, value := range s.data[namespace] {
		bucket[key] = []byte(value)
	}
	return sortedRecords(bucket), nil
}

func (s *FileStore) Delete(_ context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[namespace][key]; !ok {
		return nil
	}
	delete(s.data[namespace], key)
	return s.flush()
}

func (s *FileStore) Clear(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, namespace)
	return s.flush()
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) bucket(namespace string) map[string]string {
	bucket, ok := s.data[namespace]
	if !ok {
		bucket = make(map[string]string)
		s.data[namespace] = bucket
	}
	return bucket
}

func (s *FileStore) flush() error {
	encoded, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return storageFailure(err, "序列化注册表失败")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return storageFailure(err, "写入注册表文件失败")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return storageFailure(err, "替换注册表文件失败")
	}
	return nil
}
