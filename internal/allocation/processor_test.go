package allocation

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	xerrors "StakeEscrow-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []Request
	fail      map[common.Address]error
}

func (f *fakeDeliverer) Deliver(_ context.Context, req Request) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[req.Beneficiary]; err != nil {
		return common.Address{}, err
	}
	f.delivered = append(f.delivered, req)
	return common.BigToAddress(big.NewInt(int64(0x1000 + len(f.delivered)))), nil
}

func (f *fakeDeliverer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

func testRequest(n int64) Request {
	return Request{
		Beneficiary: common.BigToAddress(big.NewInt(n)),
		Amount:      big.NewInt(1_000 * n),
		Duration:    time.Duration(n) * time.Hour,
	}
}

func TestProcessorDrainsQueue(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	deliverer := &fakeDeliverer{}
	service := NewService(store, queue)

	var reqs []Request
	for i := int64(1); i <= 5; i++ {
		reqs = append(reqs, testRequest(i))
	}
	jobs, err := service.SubmitAll(ctx, reqs)
	if err != nil {
		t.Fatalf("提交任务失败: %v", err)
	}
	if queue.Len() != len(reqs) {
		t.Fatalf("expected %d queued jobs, got %d", len(reqs), queue.Len())
	}
	if err := queue.Close(); err != nil {
		t.Fatalf("close queue: %v", err)
	}

	processor := NewProcessor(deliverer, store, queue)
	if err := processor.Start(ctx); err != nil {
		t.Fatalf("processor exited: %v", err)
	}
	var backlog Backlog = queue
	if pending, err := backlog.Pending(ctx); err != nil || pending != 0 {
		t.Fatalf("expected drained queue, got %d (%v)", pending, err)
	}
	if deliverer.count() != len(reqs) {
		t.Fatalf("expected %d deliveries, got %d", len(reqs), deliverer.count())
	}
	for i, job := range jobs {
		got, err := service.WaitUntilCompleted(ctx, job.ID, time.Millisecond)
		if err != nil {
			t.Fatalf("wait: %v", err)
		}
		if got.Status != StatusSucceeded || got.Principal == "" {
			t.Fatalf("job %d not delivered: %+v", i, got)
		}
		if deliverer.delivered[i].Beneficiary != reqs[i].Beneficiary {
			t.Fatalf("jobs delivered out of order")
		}
	}
}

func TestProcessorFailuresAreTerminal(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(4)
	bad := testRequest(7)
	deliverer := &fakeDeliverer{fail: map[common.Address]error{
		bad.Beneficiary: xerrors.New(xerrors.CodeDeploymentFailure, "部署失败"),
	}}
	service := NewService(store, queue)
	processor := NewProcessor(deliverer, store, queue)

	job, err := service.Submit(ctx, bad)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := processor.Handle(ctx, job.ID); err != nil {
		t.Fatalf("handle: %v", err)
	}
	got, err := service.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusFailed || got.ErrorCode != string(xerrors.CodeDeploymentFailure) {
		t.Fatalf("unexpected job state %+v", got)
	}

	if _, err := store.Claim(ctx, job.ID); !errors.Is(err, ErrJobCompleted) {
		t.Fatalf("expected failed job to be terminal, got %v", err)
	}
	if err := processor.Handle(ctx, job.ID); err != nil {
		t.Fatalf("redelivery should be skipped: %v", err)
	}
	if err := processor.Handle(ctx, "missing"); err != nil {
		t.Fatalf("unknown job should be skipped: %v", err)
	}
	if deliverer.count() != 0 {
		t.Fatalf("failed job must not be delivered")
	}
}

func TestProcessorRejectsCorruptJob(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Create(ctx, &Job{ID: "corrupt", Beneficiary: "nope", Amount: "1", DurationSeconds: 60, Status: StatusPending}); err != nil {
		t.Fatalf("create: %v", err)
	}
	deliverer := &fakeDeliverer{}
	if err := NewProcessor(deliverer, store, nil).Handle(ctx, "corrupt"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	job, _ := store.Get(ctx, "corrupt")
	if job.Status != StatusFailed || job.ErrorCode != string(CodeJobValidation) {
		t.Fatalf("unexpected job state %+v", job)
	}
}

func TestSubmitValidatesRequest(t *testing.T) {
	ctx := context.Background()
	service := NewService(NewMemoryStore(), NewMemoryQueue(1))

	cases := map[string]Request{
		"zero beneficiary": {Amount: big.NewInt(1), Duration: time.Hour},
		"zero amount":      {Beneficiary: common.HexToAddress("0x01"), Amount: new(big.Int), Duration: time.Hour},
		"short duration":   {Beneficiary: common.HexToAddress("0x01"), Amount: big.NewInt(1), Duration: time.Millisecond},
	}
	for name, req := range cases {
		if _, err := service.Submit(ctx, req); !xerrors.HasCode(err, CodeJobValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
	if _, err := NewService(nil, nil).Submit(ctx, testRequest(1)); !xerrors.HasCode(err, xerrors.CodeInitializationFailure) {
		t.Fatalf("expected initialization failure, got %v", err)
	}
}

func TestSubmitMarksJobFailedWhenPublishFails(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(1)
	_ = queue.Close()

	if _, err := NewService(store, queue).Submit(ctx, testRequest(3)); !xerrors.HasCode(err, CodeJobPublish) {
		t.Fatalf("expected publish failure, got %v", err)
	}
	jobs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Status != StatusFailed {
		t.Fatalf("expected one failed job, got %+v", jobs)
	}
}
