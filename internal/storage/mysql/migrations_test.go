package mysql

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"StakeEscrow-Chain/internal/storage/mysql/mysqltest"

	mysqldriver "github.com/go-sql-driver/mysql"
)

func TestMigrateAppliesPendingFiles(t *testing.T) {
	t.Parallel()

	files, err := loadMigrationFiles()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if len(files) < 2 || files[0].version != "0001" {
		t.Fatalf("unexpected migration files %+v", files)
	}

	ops := []mysqltest.Operation{
		mysqltest.Exec(createMigrationsTableSQL, mysqltest.Result{}),
		mysqltest.Query(selectVersionsSQL, mysqltest.Rows{
			Columns: []string{"version"},
			Values:  [][]driver.Value{{files[0].version}},
		}),
	}
	for _, file := range files[1:] {
		ops = append(ops, mysqltest.Begin())
		for _, stmt := range file.statements {
			ops = append(ops, mysqltest.Exec(stmt, mysqltest.Result{}))
		}
		ops = append(ops,
			mysqltest.Exec(recordVersionSQL, mysqltest.Result{RowsAffected: 1}),
			mysqltest.Commit(),
		)
	}

	db, drv := mysqltest.New(t, ops...)
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	drv.AssertConsumed(t)
}

func TestMigrateRollsBackFailedStatement(t *testing.T) {
	t.Parallel()

	files, err := loadMigrationFiles()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	boom := errors.New("syntax error")
	db, drv := mysqltest.New(t,
		mysqltest.Exec(createMigrationsTableSQL, mysqltest.Result{}),
		mysqltest.Query(selectVersionsSQL, mysqltest.Rows{Columns: []string{"version"}}),
		mysqltest.Begin(),
		mysqltest.Exec(files[0].statements[0], mysqltest.Result{}).WithError(boom),
		mysqltest.Rollback(),
	)
	if err := Migrate(context.Background(), db); !errors.Is(err, boom) {
		t.Fatalf("expected migration failure, got %v", err)
	}
	drv.AssertConsumed(t)
}

func TestSplitSQLStatements(t *testing.T) {
	got := splitSQLStatements("CREATE TABLE a (id INT);\n\n  CREATE TABLE b (id INT);  ;")
	if len(got) != 2 || got[1] != "CREATE TABLE b (id INT)" {
		t.Fatalf("unexpected statements %q", got)
	}
	if v := parseMigrationVersion("0002_create_allocation_jobs.sql"); v != "0002" {
		t.Fatalf("unexpected version %s", v)
	}
	if v := parseMigrationVersion("0003.sql"); v != "0003" {
		t.Fatalf("unexpected version %s", v)
	}
}

func TestIsDuplicateKey(t *testing.T) {
	if !IsDuplicateKey(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"}) {
		t.Fatal("expected 1062 to be a duplicate key")
	}
	if IsDuplicateKey(&mysqldriver.MySQLError{Number: 1146}) || IsDuplicateKey(errors.New("boom")) {
		t.Fatal("unexpected duplicate key match")
	}
}

func TestOpenRejectsInvalidDSN(t *testing.T) {
	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Fatal("expected empty DSN to be rejected")
	}
}
