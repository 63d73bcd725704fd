package allocation

import (
	"context"
	"log/slog"
	"time"

	xerrors "StakeEscrow-Chain/internal/errors"
	"StakeEscrow-Chain/pkg/logger"

	"github.com/google/uuid"
)

// Service 负责分配任务的创建与查询。
type Service struct {
	store    Store
	producer Producer
}

// NewService 构造任务服务。
func NewService(store Store, producer Producer) *Service {
	return &Service{store: store, producer: producer}
}

// Submit 校验请求、持久化任务并推送到队列。
func (s *Service) Submit(ctx context.Context, req Request) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "分配服务未初始化")
	}

	job := newJob(uuid.NewString(), req)
	if err := s.store.Create(ctx, job); err != nil {
		return nil, err
	}
	if err := s.producer.Publish(ctx, job.ID); err != nil {
		logger.L().Error("分配任务入队失败", slog.Any("error", err), slog.String("job_id", job.ID))
		wrapped := xerrors.Wrap(CodeJobPublish, err, "发布分配任务到队列失败")
		_ = s.store.MarkFailed(ctx, job.ID, CodeJobPublish, wrapped.Error())
		return nil, wrapped
	}
	logger.Audit().Info("分配任务入队成功",
		slog.String("job_id", job.ID),
		slog.String("beneficiary", job.Beneficiary),
		slog.String("amount", job.Amount),
		slog.Int64("duration_seconds", job.DurationSeconds),
	)
	return job, nil
}

// SubmitAll 依次提交一批请求，遇到第一个错误即停止。
func (s *Service) SubmitAll(ctx context.Context, reqs []Request) ([]*Job, error) {
	jobs := make([]*Job, 0, len(reqs))
	for _, req := range reqs {
		job, err := s.Submit(ctx, req)
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Get 返回指定任务的状态。
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回全部任务。
func (s *Service) List(ctx context.Context) ([]*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.List(ctx)
}

// WaitUntilCompleted 轮询任务直到其进入终态或 ctx 结束。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Job, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close 释放存储与队列。
func (s *Service) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return err
		}
	}
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}
