package allocation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	xerrors "StakeEscrow-Chain/internal/errors"
	"StakeEscrow-Chain/internal/storage/mysql"

	"github.com/ethereum/go-ethereum/common"
)

// MySQLStore 使用 allocation_jobs 表记录任务状态。
type MySQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewMySQLStore 连接 MySQL 并执行迁移。
func NewMySQLStore(ctx context.Context, cfg mysql.Config) (*MySQLStore, error) {
	db, err := mysql.Open(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开 MySQL 任务存储失败")
	}
	return NewMySQLStoreWithDB(db), nil
}

// NewMySQLStoreWithDB wraps an already migrated connection pool.
func NewMySQLStoreWithDB(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db, now: time.Now}
}

const (
	insertJobSQL = `INSERT INTO allocation_jobs (id, beneficiary, status, payload, created_at, updated_at)
    VALUES (?, ?, ?, ?, ?, ?)`
	selectJobSQL = `SELECT payload FROM allocation_jobs WHERE id = ?`
	updateJobSQL = `UPDATE allocation_jobs SET status = ?, payload = ?, updated_at = ? WHERE id = ?`
	claimJobSQL  = `UPDATE allocation_jobs SET status = ?, payload = ?, updated_at = ? WHERE id = ? AND status = ?`
	listJobsSQL  = `SELECT payload FROM allocation_jobs ORDER BY created_at, id`
)

func (s *MySQLStore) Create(ctx context.Context, job *Job) error {
	if err := validateJob(job); err != nil {
		return err
	}
	now := s.now().Unix()
	if job.CreatedAt == 0 {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	payload, err := json.Marshal(job)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化任务失败")
	}
	_, err = s.db.ExecContext(ctx, insertJobSQL, job.ID, job.Beneficiary, string(job.Status), string(payload), job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if mysql.IsDuplicateKey(err) {
			return ErrJobConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入任务失败")
	}
	return nil
}

func (s *MySQLStore) Get(ctx context.Context, id string) (*Job, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, selectJobSQL, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务失败")
	}
	return decodeJob(payload)
}

func (s *MySQLStore) Claim(ctx context.Context, id string) (*Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := claimable(job); err != nil {
		return job, err
	}
	job.Status = StatusRunning
	job.UpdatedAt = s.now().Unix()
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化任务失败")
	}
	res, err := s.db.ExecContext(ctx, claimJobSQL, string(StatusRunning), string(payload), job.UpdatedAt, id, string(StatusPending))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "领取任务失败")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrJobConflict
	}
	return job, nil
}

func (s *MySQLStore) MarkSucceeded(ctx context.Context, id string, principal common.Address) error {
	return s.update(ctx, id, func(job *Job) {
		job.Status = StatusSucceeded
		job.Principal = principal.Hex()
		job.LastError = ""
		job.ErrorCode = ""
	})
}

func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string) error {
	return s.update(ctx, id, func(job *Job) {
		job.Status = StatusFailed
		job.LastError = lastError
		job.ErrorCode = string(code)
	})
}

func (s *MySQLStore) update(ctx context.Context, id string, fn func(*Job)) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	fn(job)
	job.UpdatedAt = s.now().Unix()
	payload, err := json.Marshal(job)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化任务失败")
	}
	if _, err := s.db.ExecContext(ctx, updateJobSQL, string(job.Status), string(payload), job.UpdatedAt, id); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新任务状态失败")
	}
	return nil
}

func (s *MySQLStore) List(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, listJobsSQL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务列表失败")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取任务失败")
		}
		job, err := decodeJob(payload)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历任务失败")
	}
	return jobs, nil
}

func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func decodeJob(payload []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析任务失败")
	}
	return &job, nil
}
