package allocation

import (
	"context"

	xerrors "StakeEscrow-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// Store 持久化分配任务的状态。
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	// Claim moves a pending job to running. Terminal jobs yield
	// ErrJobCompleted and running jobs ErrJobConflict.
	Claim(ctx context.Context, id string) (*Job, error)
	MarkSucceeded(ctx context.Context, id string, principal common.Address) error
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string) error
	List(ctx context.Context) ([]*Job, error)
	Close() error
}

func validateJob(job *Job) error {
	if job == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "job 不能为空")
	}
	if job.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "任务 ID 不能为空")
	}
	return nil
}

func claimable(job *Job) error {
	switch job.Status {
	case StatusSucceeded, StatusFailed:
		return ErrJobCompleted
	case StatusRunning:
		return ErrJobConflict
	}
	return nil
}
