package registry

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"StakeEscrow-Chain/internal/storage/mysql"
)

// MySQLConfig 描述 MySQL 存储的连接参数。
type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// MySQLStore 将记录保存在 registry_entries 表中。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 连接 MySQL 并执行数据库迁移。
func NewMySQLStore(ctx context.Context, cfg MySQLConfig) (*MySQLStore, error) {
	db, err := mysql.Open(ctx, mysql.Config{
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, storageFailure(err, "打开 MySQL 注册表失败")
	}
	return NewMySQLStoreWithDB(db), nil
}

// NewMySQLStoreWithDB 使用已完成迁移的连接池。
func NewMySQLStoreWithDB(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

const (
	upsertEntrySQL = `INSERT INTO registry_entries (namespace, entry_key, payload, updated_at)
    VALUES (?, ?, ?, ?)
    ON DUPLICATE KEY UPDATE payload = VALUES(payload), updated_at = VALUES(updated_at)`
	insertEntrySQL = `INSERT INTO registry_entries (namespace, entry_key, payload, updated_at)
    VALUES (?, ?, ?, ?)`
	selectEntrySQL  = `SELECT payload FROM registry_entries WHERE namespace = ? AND entry_key = ?`
	listEntriesSQL  = `SELECT entry_key, payload FROM registry_entries WHERE namespace = ? ORDER BY entry_key`
	deleteEntrySQL  = `DELETE FROM registry_entries WHERE namespace = ? AND entry_key = ?`
	clearEntriesSQL = `DELETE FROM registry_entries WHERE namespace = ?`
)

// Put 以 upsert 方式写入记录。
func (s *MySQLStore) Put(ctx context.Context, namespace, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, upsertEntrySQL, namespace, key, string(value), time.Now().Unix()); err != nil {
		return storageFailure(err, "写入注册表记录失败")
	}
	return nil
}

// Create 写入新记录，主键冲突时返回 CodeConflict。
func (s *MySQLStore) Create(ctx context.Context, namespace, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, insertEntrySQL, namespace, key, string(value), time.Now().Unix()); err != nil {
		if mysql.IsDuplicateKey(err) {
			return conflict(namespace, key)
		}
		return storageFailure(err, "写入注册表记录失败")
	}
	return nil
}

// Get 读取一条记录。
func (s *MySQLStore) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, selectEntrySQL, namespace, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(namespace, key)
	}
	if err != nil {
		return nil, storageFailure(err, "读取注册表记录失败")
	}
	return []byte(payload), nil
}

// List 按 entry_key 排序返回命名空间下的记录。
func (s *MySQLStore) List(ctx context.Context, namespace string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, listEntriesSQL, namespace)
	if err != nil {
		return nil, storageFailure(err, "查询注册表记录失败")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var key, payload string
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, storageFailure(err, "解析注册表记录失败")
		}
		records = append(records, Record{Key: key, Value: []byte(payload)})
	}
	if err := rows.Err(); err != nil {
		return nil, storageFailure(err, "遍历注册表记录失败")
	}
	return records, nil
}

// Delete 删除一条记录，记录不存在时不报错。
func (s *MySQLStore) Delete(ctx context.Context, namespace, key string) error {
	if _, err := s.db.ExecContext(ctx, deleteEntrySQL, namespace, key); err != nil {
		return storageFailure(err, "删除注册表记录失败")
	}
	return nil
}

// Clear 删除命名空间下的全部记录。
func (s *MySQLStore) Clear(ctx context.Context, namespace string) error {
	if _, err := s.db.ExecContext(ctx, clearEntriesSQL, namespace); err != nil {
		return storageFailure(err, "清空注册表失败")
	}
	return nil
}

// Close 关闭连接池。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func secondsToDuration(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
