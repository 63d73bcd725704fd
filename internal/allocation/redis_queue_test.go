package allocation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestRedisQueuePublishAndConsume(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	queue, err := NewRedisQueue(ctx, RedisQueueConfig{Address: mr.Addr(), Queue: "test:jobs", BlockWait: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("new redis queue: %v", err)
	}
	t.Cleanup(func() { _ = queue.Close() })

	for _, id := range []string{"a", "b", "c"} {
		if err := queue.Publish(ctx, id); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}
	if n, err := queue.Pending(ctx); err != nil || n != 3 {
		t.Fatalf("expected 3 pending jobs, got %d (%v)", n, err)
	}

	var (
		mu       sync.Mutex
		seen     []string
		attempts = map[string]int{}
	)
	consumeCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- queue.Consume(consumeCtx, 1, func(_ context.Context, id string) error {
			mu.Lock()
			defer mu.Unlock()
			attempts[id]++
			if id == "b" && attempts[id] == 1 {
				return errors.New("transient")
			}
			seen = append(seen, id)
			if len(seen) == 3 {
				stop()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected consume error: %v", err)
		}
	case <-time.After(4 * time.Second):
		t.Fatal("consumer did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 || seen[0] != "a" {
		t.Fatalf("unexpected consumption order %v", seen)
	}
	if attempts["b"] != 2 {
		t.Fatalf("expected failed job to be requeued once, got %d attempts", attempts["b"])
	}
}

func TestNewRedisQueueRequiresAddress(t *testing.T) {
	if _, err := NewRedisQueue(context.Background(), RedisQueueConfig{}); err == nil {
		t.Fatal("expected missing address to fail")
	}
}
