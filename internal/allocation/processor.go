package allocation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	xerrors "StakeEscrow-Chain/internal/errors"
	"StakeEscrow-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// Processor 从队列消费任务并交给 Deliverer 执行。
type Processor struct {
	deliverer   Deliverer
	store       Store
	consumer    Consumer
	workerCount int
	logger      *slog.Logger
	observer    Observer
}

// Observer 接收任务到达终态的通知。
type Observer interface {
	ObserveJob(status string, elapsed time.Duration)
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定调试日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithObserver 配置任务终态的观察者，例如指标收集器。
func WithObserver(observer Observer) ProcessorOption {
	return func(p *Processor) {
		p.observer = observer
	}
}

// NewProcessor 构造 Processor，默认单个工作协程。
func NewProcessor(deliverer Deliverer, store Store, consumer Consumer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		deliverer:   deliverer,
		store:       store,
		consumer:    consumer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 启动处理循环，直到 ctx 结束或队列关闭。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.Handle)
}

// Handle 处理单个任务。投递失败会被记录为终态，只有存储错误会返回给队列。
func (p *Processor) Handle(ctx context.Context, jobID string) error {
	if p.store == nil || p.deliverer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	job, err := p.store.Claim(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrJobCompleted) || errors.Is(err, ErrJobConflict) {
			p.logDebug("跳过分配任务", slog.String("job_id", jobID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取分配任务失败", slog.Any("error", err), slog.String("job_id", jobID))
		return err
	}

	started := time.Now()
	req, err := job.Request()
	if err != nil {
		return p.fail(ctx, job, common.Address{}, err, started)
	}
	principal, err := p.deliverer.Deliver(ctx, req)
	if err != nil {
		return p.fail(ctx, job, principal, err, started)
	}
	if err := p.store.MarkSucceeded(ctx, job.ID, principal); err != nil {
		logger.L().Error("标记分配任务成功状态失败", slog.Any("error", err), slog.String("job_id", job.ID))
		return err
	}
	logger.Audit().Info("分配任务执行成功",
		slog.String("job_id", job.ID),
		slog.String("beneficiary", job.Beneficiary),
		slog.String("principal", principal.Hex()),
	)
	p.observe(StatusSucceeded, started)
	return nil
}

func (p *Processor) fail(ctx context.Context, job *Job, principal common.Address, cause error, started time.Time) error {
	code := xerrors.CodeOf(cause)
	if code == xerrors.CodeUnknown {
		code = CodeJobDelivery
	}
	if err := p.store.MarkFailed(ctx, job.ID, code, cause.Error()); err != nil {
		logger.L().Error("标记分配任务失败状态出错", slog.Any("error", err), slog.String("job_id", job.ID))
		return err
	}
	attrs := []any{
		slog.String("job_id", job.ID),
		slog.String("beneficiary", job.Beneficiary),
		slog.String("error", cause.Error()),
		slog.String("error_code", string(code)),
	}
	if principal != (common.Address{}) {
		attrs = append(attrs, slog.String("principal", principal.Hex()))
	}
	logger.Audit().Warn("分配任务执行失败", attrs...)
	p.observe(StatusFailed, started)
	return nil
}

func (p *Processor) observe(status Status, started time.Time) {
	if p.observer != nil {
		p.observer.ObserveJob(string(status), time.Since(started))
	}
}

func (p *Processor) logDebug(msg string, attrs ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, attrs...)
	}
}
