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

func getMySQLDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/econd_test?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func newTestMySQLAdapter(t *testing.T) *SQLAdapter {
	t.Helper()
	db := getMySQLDB(t)

	log := logrus.New()
	log.SetOutput(io.Discard)
	adapter := NewSQLAdapter(db, MySQLDialect{}, "econd_test_", decimal.NewFromInt(1000), log)
	if err := adapter.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return adapter
}

func TestMySQLAdapter_CreateAndCAS(t *testing.T) {
	ctx := context.Background()
	adapter := newTestMySQLAdapter(t)

	id := uuid.New()
	if err := adapter.CreateAccount(ctx, id, "integration"); err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { adapter.DeleteAccount(ctx, id) })

	ok, err := adapter.CheckAndSetBalance(ctx, id, decimal.NewFromInt(1250), 0)
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
	if acct == nil || !acct.Balance.Equal(decimal.NewFromInt(1250)) || acct.Version != 1 {
		t.Fatalf("expected 1250 at version 1, got %+v", acct)
	}
}

func TestMySQLAdapter_ConcurrentCASSingleWinner(t *testing.T) {
	ctx := context.Background()
	adapter := newTestMySQLAdapter(t)

	id := uuid.New()
	if err := adapter.CreateAccount(ctx, id, "contended"); err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { adapter.DeleteAccount(ctx, id) })

	const writers = 10
	results := make(chan bool, writers)
	for i := 0; i < writers; i++ {
		go func(n int64) {
			ok, err := adapter.CheckAndSetBalance(ctx, id, decimal.NewFromInt(n), 0)
			if err != nil {
				t.Errorf("cas: %v", err)
			}
			results <- ok
		}(int64(i))
	}

	wins := 0
	for i := 0; i < writers; i++ {
		if <-results {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly one writer to win at version 0, got %d", wins)
	}

	acct, err := adapter.GetAccount(ctx, id)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acct == nil || acct.Version != 1 {
		t.Fatalf("expected version 1 after single winning write, got %+v", acct)
	}
}
