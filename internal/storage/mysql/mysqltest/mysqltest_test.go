package mysqltest

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
)

func TestExecReportsScriptedResult(t *testing.T) {
	db, drv := New(t,
		Exec(`UPDATE jobs SET status = ? WHERE id = ?`, Result{LastInsertID: 7, RowsAffected: 3}),
	)

	res, err := db.ExecContext(context.Background(), "UPDATE jobs\n  SET status = ?  WHERE id = ?", "done", "a")
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 3 {
		t.Fatalf("unexpected rows affected %d (%v)", n, err)
	}
	if id, err := res.LastInsertId(); err != nil || id != 7 {
		t.Fatalf("unexpected last insert id %d (%v)", id, err)
	}
	if args := drv.Args(0); len(args) != 2 || args[0] != "done" || args[1] != "a" {
		t.Fatalf("unexpected args %v", args)
	}
	drv.AssertConsumed(t)
}

func TestQueryAndTransactionFollowScript(t *testing.T) {
	boom := errors.New("boom")
	db, drv := New(t,
		Query(`SELECT name FROM t`, Rows{Columns: []string{"name"}, Values: [][]driver.Value{{"x"}, {"y"}}}),
		Begin(),
		Exec(`DELETE FROM t`, Result{}).WithError(boom),
		Rollback(),
	)
	ctx := context.Background()

	rows, err := db.QueryContext(ctx, `SELECT name FROM t`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan: %v", err)
		}
		names = append(names, name)
	}
	rows.Close()
	if len(names) != 2 || names[1] != "y" {
		t.Fatalf("unexpected rows %v", names)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM t`); !errors.Is(err, boom) {
		t.Fatalf("expected scripted error, got %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	drv.AssertConsumed(t)
}
