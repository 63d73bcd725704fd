package allocation

import (
	"context"
	"errors"
	"testing"
	"time"

	xerrors "StakeEscrow-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

func TestMemoryStoreLifecycleAndStats(t *testing.T) {
	store := NewMemoryStore()
	clock := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return clock }
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c", "d"} {
		if err := store.Create(ctx, newJob(id, testRequest(int64(i+1)))); err != nil {
			t.Fatalf("create job %s: %v", id, err)
		}
		clock = clock.Add(time.Second)
	}
	if err := store.Create(ctx, newJob("a", testRequest(1))); !errors.Is(err, ErrJobConflict) {
		t.Fatalf("expected duplicate id to conflict, got %v", err)
	}
	if err := store.Create(ctx, &Job{}); !xerrors.HasCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("expected empty id to be rejected, got %v", err)
	}

	if _, err := store.Claim(ctx, "b"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := store.Claim(ctx, "b"); !errors.Is(err, ErrJobConflict) {
		t.Fatalf("expected running job to conflict, got %v", err)
	}
	if err := store.MarkSucceeded(ctx, "b", common.HexToAddress("0xb0")); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	if err := store.MarkFailed(ctx, "c", CodeJobDelivery, "boom"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "d"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkFailed(ctx, "missing", CodeJobDelivery, "boom"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	jobs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 4 || jobs[0].ID != "a" || jobs[3].ID != "d" {
		t.Fatalf("expected jobs in creation order, got %+v", jobs)
	}
	jobs[0].Status = StatusFailed
	if got, _ := store.Get(ctx, "a"); got.Status != StatusPending {
		t.Fatal("listed jobs must be copies")
	}

	stats := Summarize(jobs[1:])
	if stats.Total != 3 || stats.Succeeded != 1 || stats.Failed != 1 || stats.Running != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.NewestUpdatedAt != clock.Unix() {
		t.Fatalf("unexpected newest timestamp %d", stats.NewestUpdatedAt)
	}
}
