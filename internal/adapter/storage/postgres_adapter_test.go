package storage

import (
	"context"
	"database/sql"
	"io"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func getPostgresDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		dsn = "host=localhost port=5432 user=postgres password=postgres dbname=econd_test sslmode=disable"
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func TestPostgresAdapter_CreateAndCAS(t *testing.T) {
	ctx := context.Background()
	db := getPostgresDB(t)

	log := logrus.New()
	log.SetOutput(io.Discard)
	adapter := NewSQLAdapter(db, PostgresDialect{}, "econd_test_", decimal.NewFromInt(1000), log)
	if err := adapter.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	id := uuid.New()
	if err := adapter.CreateAccount(ctx, id, "integration"); err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { adapter.DeleteAccount(ctx, id) })

	ok, err := adapter.CheckAndSetBalance(ctx, id, decimal.RequireFromString("1250.50"), 0)
	if err != nil || !ok {
		t.Fatalf("cas at version 0: ok=%v err=%v", ok, err)
	}
	ok, err = adapter.CheckAndSetBalance(ctx, id, decimal.NewFromInt(0), 0)
	if err != nil {
		t.Fatalf("cas: %v", err)
	}
	if ok {
		t.Fatal("cas at stale version must fail")
	}

	acct, err := adapter.GetAccount(ctx, id)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acct == nil || !acct.Balance.Equal(decimal.RequireFromString("1250.50")) || acct.Version != 1 {
		t.Fatalf("expected 1250.50 at version 1, got %+v", acct)
	}

	// The name index is case-insensitive through LOWER().
	resolved, ok, err := adapter.GetUUID(ctx, "INTEGRATION")
	if err != nil || !ok || resolved != id {
		t.Fatalf("lookup: resolved=%s ok=%v err=%v", resolved, ok, err)
	}
}
