package registry

import (
	"context"
	"database/sql/driver"
	"testing"

	xerrors "StakeEscrow-Chain/internal/errors"
	"StakeEscrow-Chain/internal/storage/mysql/mysqltest"

	mysqldriver "github.com/go-sql-driver/mysql"
)

func TestMySQLStoreWrites(t *testing.T) {
	t.Parallel()

	db, drv := mysqltest.New(t,
		mysqltest.Exec(upsertEntrySQL, mysqltest.Result{RowsAffected: 1}),
		mysqltest.Exec(insertEntrySQL, mysqltest.Result{}).WithError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"}),
		mysqltest.Exec(deleteEntrySQL, mysqltest.Result{RowsAffected: 1}),
		mysqltest.Exec(clearEntriesSQL, mysqltest.Result{RowsAffected: 3}),
	)
	store := NewMySQLStoreWithDB(db)
	ctx := context.Background()

	if err := store.Put(ctx, "allocations", "0xabc", []byte(`{"name":"UserEscrow"}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	args := drv.Args(0)
	if len(args) != 4 || args[0] != "allocations" || args[1] != "0xabc" || args[2] != `{"name":"UserEscrow"}` {
		t.Fatalf("unexpected bound args %v", args)
	}
	if err := store.Create(ctx, "allocations", "0xabc", []byte("{}")); !xerrors.HasCode(err, xerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := store.Delete(ctx, "allocations", "0xabc"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Clear(ctx, "allocations"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	drv.AssertConsumed(t)
}

func TestMySQLStoreReads(t *testing.T) {
	t.Parallel()

	db, drv := mysqltest.New(t,
		mysqltest.Query(selectEntrySQL, mysqltest.Rows{
			Columns: []string{"payload"},
			Values:  [][]driver.Value{{[]byte("v1")}},
		}),
		mysqltest.Query(selectEntrySQL, mysqltest.Rows{Columns: []string{"payload"}}),
		mysqltest.Query(listEntriesSQL, mysqltest.Rows{
			Columns: []string{"entry_key", "payload"},
			Values: [][]driver.Value{
				{"a", []byte("1")},
				{"b", []byte("2")},
			},
		}),
	)
	store := NewMySQLStoreWithDB(db)
	ctx := context.Background()

	value, err := store.Get(ctx, "contracts", "k")
	if err != nil || string(value) != "v1" {
		t.Fatalf("unexpected get %q %v", value, err)
	}
	if _, err := store.Get(ctx, "contracts", "missing"); !xerrors.HasCode(err, xerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	records, err := store.List(ctx, "contracts")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 || records[1].Key != "b" || string(records[1].Value) != "2" {
		t.Fatalf("unexpected records %+v", records)
	}
	drv.AssertConsumed(t)
}
