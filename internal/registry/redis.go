package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisOptions 描述 Redis 存储的连接参数。
type RedisOptions struct {
	Address  string
	Username string
	Password string
	DB       int
	Prefix   string
}

// RedisStore 将每个命名空间保存为一个 Redis 哈希。
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore 连接 Redis 并校验连通性。
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if strings.TrimSpace(opts.Address) == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, storageFailure(fmt.Errorf("连接 Redis 失败: %w", err), "打开 Redis 注册表失败")
	}
	prefix := strings.TrimSuffix(opts.Prefix, ":")
	if prefix == "" {
		prefix = "stake-escrow:registry"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) hash(namespace string) string {
	return s.prefix + ":" + namespace
}

// Put 通过 HSET 写入记录。
func (s *RedisStore) Put(ctx context.Context, namespace, key string, value []byte) error {
	if err := s.client.HSet(ctx, s.hash(namespace), key, value).Err(); err != nil {
		return storageFailure(err, "写入 Redis 注册表失败")
	}
	return nil
}

// Create 通过 HSETNX 写入新记录，字段已存在时返回 CodeConflict。
func (s *RedisStore) Create(ctx context.Context, namespace, key string, value []byte) error {
	created, err := s.client.HSetNX(ctx, s.hash(namespace), key, value).Result()
	if err != nil {
		return storageFailure(err, "写入 Redis 注册表失败")
	}
	if !created {
		return conflict(namespace, key)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	value, err := s.client.HGet(ctx, s.hash(namespace), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(namespace, key)
	}
	if err != nil {
		return nil, storageFailure(err, "读取 Redis 注册表失败")
	}
	return value, nil
}

// List 读取整个哈希并按键排序。
func (s *RedisStore) List(ctx context.Context, namespace string) ([]Record, error) {
	entries, err := s.client.HGetAll(ctx, s.hash(namespace)).Result()
	if err != nil {
		return nil, storageFailure(err, "读取 Redis 注册表失败")
	}
	records := make([]Record, 0, len(entries))
	for key, value := range entries {
		records = append(records, Record{Key: key, Value: []byte(value)})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, nil
}

func (s *RedisStore) Delete(ctx context.Context, namespace, key string) error {
	if err := s.client.HDel(ctx, s.hash(namespace), key).Err(); err != nil {
		return storageFailure(err, "删除 Redis 注册表记录失败")
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, namespace string) error {
	if err := s.client.Del(ctx, s.hash(namespace)).Err(); err != nil {
		return storageFailure(err, "清空 Redis 注册表失败")
	}
	return nil
}

// Close 关闭 Redis 客户端。
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
