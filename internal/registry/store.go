package registry

import (
	"context"
	"fmt"

	"StakeEscrow-Chain/internal/config"
	xerrors "StakeEscrow-Chain/internal/errors"
)

// Record 是命名空间下的一条记录。
type Record struct {
	Key   string
	Value []byte
}

// Store 是按命名空间划分的键值存储。键不存在时返回 CodeNotFound，
// 对已存在的键调用 Create 返回 CodeConflict。
type Store interface {
	Put(ctx context.Context, namespace, key string, value []byte) error
	Create(ctx context.Context, namespace, key string, value []byte) error
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	// List 按键排序返回命名空间下的记录。
	List(ctx context.Context, namespace string) ([]Record, error)
	Delete(ctx context.Context, namespace, key string) error
	Clear(ctx context.Context, namespace string) error
	Close() error
}

// Open 根据 cfg.Driver 创建对应的存储。
func Open(ctx context.Context, cfg config.RegistryConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(cfg.Path)
	case "mysql":
		return NewMySQLStore(ctx, MySQLConfig{
			DSN:             cfg.MySQL.DSN,
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: secondsToDuration(cfg.MySQL.ConnMaxLifetimeSeconds),
		})
	case "redis":
		return NewRedisStore(ctx, RedisOptions{
			Address:  cfg.Redis.Address,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的注册表驱动: %s", cfg.Driver))
	}
}

func notFound(namespace, key string) error {
	return xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("%s/%s 不存在", namespace, key),
		xerrors.WithMetadata("namespace", namespace), xerrors.WithMetadata("key", key))
}

func conflict(namespace, key string) error {
	return xerrors.New(xerrors.CodeConflict, fmt.Sprintf("%s/%s 已存在", namespace, key),
		xerrors.WithMetadata("namespace", namespace), xerrors.WithMetadata("key", key))
}

func storageFailure(err error, message string) error {
	return xerrors.Wrap(xerrors.CodeStorageFailure, err, message)
}
