package allocation

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	xerrors "StakeEscrow-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// Status 表示分配任务在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the job will not run again.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Request describes one allocation to deliver.
type Request struct {
	Beneficiary common.Address
	Amount      *big.Int
	Duration    time.Duration
}

// Validate 检查受益人、金额与锁定时长。
func (r Request) Validate() error {
	if r.Beneficiary == (common.Address{}) {
		return xerrors.New(CodeJobValidation, "受益人地址不能为空")
	}
	if r.Amount == nil || r.Amount.Sign() <= 0 {
		return xerrors.New(CodeJobValidation, "分配金额必须为正数")
	}
	if r.Duration < time.Second {
		return xerrors.New(CodeJobValidation, "锁定时长至少为一秒")
	}
	return nil
}

// Job 描述排队执行的一次分配。
type Job struct {
	ID              string `json:"id"`
	Beneficiary     string `json:"beneficiary"`
	Amount          string `json:"amount"`
	DurationSeconds int64  `json:"duration_seconds"`
	Status          Status `json:"status"`
	Principal       string `json:"principal,omitempty"`
	LastError       string `json:"last_error,omitempty"`
	ErrorCode       string `json:"error_code,omitempty"`
	CreatedAt       int64  `json:"created_at"`
	UpdatedAt       int64  `json:"updated_at"`
}

func newJob(id string, req Request) *Job {
	return &Job{
		ID:              id,
		Beneficiary:     req.Beneficiary.Hex(),
		Amount:          req.Amount.String(),
		DurationSeconds: int64(req.Duration / time.Second),
		Status:          StatusPending,
	}
}

// Request 将持久化字段还原为分配请求。
func (j *Job) Request() (Request, error) {
	if !common.IsHexAddress(j.Beneficiary) {
		return Request{}, xerrors.New(CodeJobValidation, fmt.Sprintf("无效的受益人地址: %s", j.Beneficiary))
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(j.Amount), 10)
	if !ok {
		return Request{}, xerrors.New(CodeJobValidation, fmt.Sprintf("无效的分配金额: %s", j.Amount))
	}
	req := Request{
		Beneficiary: common.HexToAddress(j.Beneficiary),
		Amount:      amount,
		Duration:    time.Duration(j.DurationSeconds) * time.Second,
	}
	return req, req.Validate()
}

func (j *Job) clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	return &c
}

var (
	// ErrJobNotFound 表示指定的任务不存在。
	ErrJobNotFound = xerrors.New(CodeJobNotFound, "allocation job not found")
	// ErrJobConflict 表示任务正在被其他工作协程处理，或 ID 已被占用。
	ErrJobConflict = xerrors.New(CodeJobConflict, "allocation job conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrJobCompleted 表示任务已经到达终态。
	ErrJobCompleted = xerrors.New(CodeJobCompleted, "allocation job already completed", xerrors.WithSeverity(xerrors.SeverityInfo))
)

const (
	CodeJobNotFound   xerrors.Code = "ALLOCATION_JOB_NOT_FOUND"
	CodeJobConflict   xerrors.Code = "ALLOCATION_JOB_CONFLICT"
	CodeJobCompleted  xerrors.Code = "ALLOCATION_JOB_COMPLETED"
	CodeJobValidation xerrors.Code = "ALLOCATION_JOB_VALIDATION"
	CodeJobPublish    xerrors.Code = "ALLOCATION_JOB_PUBLISH"
	CodeJobDelivery   xerrors.Code = "ALLOCATION_JOB_DELIVERY"
)

func init() {
	xerrors.Register(CodeJobNotFound, xerrors.Attributes{Message: "allocation job not found", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeJobConflict, xerrors.Attributes{Message: "allocation job conflict", Severity: xerrors.SeverityWarning})
	xerrors.Register(CodeJobCompleted, xerrors.Attributes{Message: "allocation job completed", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeJobValidation, xerrors.Attributes{Message: "invalid allocation", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeJobPublish, xerrors.Attributes{Message: "failed to publish allocation job", Severity: xerrors.SeverityCritical, Retryable: true})
	xerrors.Register(CodeJobDelivery, xerrors.Attributes{Message: "allocation delivery failed", Severity: xerrors.SeverityCritical})
}
