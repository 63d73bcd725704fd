package allocation

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	xerrors "StakeEscrow-Chain/internal/errors"
	"StakeEscrow-Chain/internal/storage/mysql/mysqltest"

	"github.com/ethereum/go-ethereum/common"
	mysqldriver "github.com/go-sql-driver/mysql"
)

func payloadOf(t *testing.T, job Job) []byte {
	t.Helper()
	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	return data
}

func fixedStore(store *MySQLStore) *MySQLStore {
	store.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return store
}

func TestMySQLStoreCreateAndConflict(t *testing.T) {
	db, drv := mysqltest.New(t,
		mysqltest.Exec(insertJobSQL, mysqltest.Result{RowsAffected: 1}),
		mysqltest.Exec(insertJobSQL, mysqltest.Result{}).WithError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"}),
	)
	store := fixedStore(NewMySQLStoreWithDB(db))
	ctx := context.Background()

	job := newJob("job-1", testRequest(2))
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	args := drv.Args(0)
	if len(args) != 6 || args[0] != "job-1" || args[1] != job.Beneficiary || args[2] != string(StatusPending) {
		t.Fatalf("unexpected bound args %v", args)
	}
	if args[4] != int64(1_700_000_000) {
		t.Fatalf("unexpected created_at %v", args[4])
	}
	if err := store.Create(ctx, newJob("job-1", testRequest(2))); !errors.Is(err, ErrJobConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	drv.AssertConsumed(t)
}

func TestMySQLStoreClaimAndMark(t *testing.T) {
	pending := *newJob("job-2", testRequest(4))
	running := pending
	running.Status = StatusRunning
	done := pending
	done.Status = StatusSucceeded

	db, drv := mysqltest.New(t,
		mysqltest.Query(selectJobSQL, mysqltest.Rows{Columns: []string{"payload"}, Values: [][]driver.Value{{payloadOf(t, pending)}}}),
		mysqltest.Exec(claimJobSQL, mysqltest.Result{RowsAffected: 1}),
		mysqltest.Query(selectJobSQL, mysqltest.Rows{Columns: []string{"payload"}, Values: [][]driver.Value{{payloadOf(t, running)}}}),
		mysqltest.Exec(updateJobSQL, mysqltest.Result{RowsAffected: 1}),
		mysqltest.Query(selectJobSQL, mysqltest.Rows{Columns: []string{"payload"}, Values: [][]driver.Value{{payloadOf(t, done)}}}),
		mysqltest.Query(selectJobSQL, mysqltest.Rows{Columns: []string{"payload"}}),
		mysqltest.Query(selectJobSQL, mysqltest.Rows{Columns: []string{"payload"}, Values: [][]driver.Value{{payloadOf(t, pending)}}}),
		mysqltest.Exec(claimJobSQL, mysqltest.Result{RowsAffected: 0}),
	)
	store := fixedStore(NewMySQLStoreWithDB(db))
	ctx := context.Background()

	claimed, err := store.Claim(ctx, "job-2")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusRunning {
		t.Fatalf("expected running job, got %s", claimed.Status)
	}
	if args := drv.Args(1); args[0] != string(StatusRunning) || args[3] != "job-2" || args[4] != string(StatusPending) {
		t.Fatalf("unexpected claim args %v", args)
	}

	principal := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	if err := store.MarkSucceeded(ctx, "job-2", principal); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	var stored Job
	if err := json.Unmarshal([]byte(drv.Args(3)[1].(string)), &stored); err != nil {
		t.Fatalf("decode stored payload: %v", err)
	}
	if stored.Status != StatusSucceeded || stored.Principal != principal.Hex() {
		t.Fatalf("unexpected stored job %+v", stored)
	}

	if _, err := store.Claim(ctx, "job-2"); !errors.Is(err, ErrJobCompleted) {
		t.Fatalf("expected completed, got %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.Claim(ctx, "job-2"); !errors.Is(err, ErrJobConflict) {
		t.Fatalf("expected lost claim race to conflict, got %v", err)
	}
	drv.AssertConsumed(t)
}

func TestMySQLStoreListAndFailures(t *testing.T) {
	first := *newJob("job-a", testRequest(1))
	second := *newJob("job-b", testRequest(2))
	db, drv := mysqltest.New(t,
		mysqltest.Query(listJobsSQL, mysqltest.Rows{
			Columns: []string{"payload"},
			Values:  [][]driver.Value{{payloadOf(t, first)}, {payloadOf(t, second)}},
		}),
		mysqltest.Query(listJobsSQL, mysqltest.Rows{}).WithError(errors.New("connection reset")),
	)
	store := NewMySQLStoreWithDB(db)
	ctx := context.Background()

	jobs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "job-a" || jobs[1].ID != "job-b" {
		t.Fatalf("unexpected jobs %+v", jobs)
	}
	if _, err := store.List(ctx); !xerrors.HasCode(err, xerrors.CodeStorageFailure) {
		t.Fatalf("expected storage failure, got %v", err)
	}
	drv.AssertConsumed(t)
}
