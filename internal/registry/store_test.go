package registry

import (
	"context"
	"path/filepath"
	"testing"

	"StakeEscrow-Chain/internal/config"
	xerrors "StakeEscrow-Chain/internal/errors"

	"github.com/alicebob/miniredis/v2"
)

func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Get(ctx, "ns", "missing"); !xerrors.HasCode(err, xerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Put(ctx, "ns", "b", []byte("2")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Create(ctx, "ns", "a", []byte("1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, "ns", "a", []byte("again")); !xerrors.HasCode(err, xerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := store.Put(ctx, "other", "a", []byte("x")); err != nil {
		t.Fatalf("put other namespace: %v", err)
	}

	value, err := store.Get(ctx, "ns", "a")
	if err != nil || string(value) != "1" {
		t.Fatalf("unexpected get %q %v", value, err)
	}
	records, err := store.List(ctx, "ns")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 || records[0].Key != "a" || string(records[1].Value) != "2" {
		t.Fatalf("unexpected records %+v", records)
	}

	if err := store.Delete(ctx, "ns", "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "ns", "a"); !xerrors.HasCode(err, xerrors.CodeNotFound) {
		t.Fatalf("expected deleted key to be gone, got %v", err)
	}
	if err := store.Clear(ctx, "ns"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if records, _ := store.List(ctx, "ns"); len(records) != 0 {
		t.Fatalf("expected empty namespace, got %+v", records)
	}
	if _, err := store.Get(ctx, "other", "a"); err != nil {
		t.Fatalf("clear leaked into other namespace: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	runStoreContract(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "registry.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	runStoreContract(t, store)

	if err := store.Put(context.Background(), "ns", "kept", []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if value, err := reopened.Get(context.Background(), "ns", "kept"); err != nil || string(value) != "v" {
		t.Fatalf("expected record to survive reopen, got %q %v", value, err)
	}
}

func TestRedisStore(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)

	store, err := NewRedisStore(context.Background(), RedisOptions{Address: mr.Addr(), Prefix: "test:"})
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	runStoreContract(t, store)

	if !mr.Exists("test:other") {
		t.Fatal("expected namespace hash under the configured prefix")
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, err := Open(ctx, config.RegistryConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("unexpected store %T", store)
	}

	store, err = Open(ctx, config.RegistryConfig{Driver: "file", Path: filepath.Join(t.TempDir(), "r.json")})
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	if _, ok := store.(*FileStore); !ok {
		t.Fatalf("unexpected store %T", store)
	}

	if _, err := Open(ctx, config.RegistryConfig{Driver: "etcd"}); !xerrors.HasCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("expected unsupported driver error, got %v", err)
	}
}
