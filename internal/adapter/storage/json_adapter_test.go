package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newTestJSONAdapter(t *testing.T) *JSONAdapter {
	t.Helper()
	path := filepath.Join(t.TempDir(), "balances.json")
	adapter := NewJSONAdapter(path, decimal.NewFromInt(1000))
	if err := adapter.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return adapter
}

func TestJSONAdapter_RoundTripPersistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "balances.json")

	adapter := NewJSONAdapter(path, decimal.NewFromInt(1000))
	if err := adapter.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	id := uuid.New()
	if err := adapter.CreateAccount(ctx, id, "alice"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := adapter.SetBalance(ctx, id, decimal.NewFromInt(4321)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := adapter.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Cold reload from disk.
	reloaded := NewJSONAdapter(path, decimal.NewFromInt(1000))
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}

	balance, err := reloaded.GetBalance(ctx, id)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(4321)) {
		t.Errorf("expected 4321 after reload, got %s", balance)
	}

	acct, err := reloaded.GetAccount(ctx, id)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acct == nil || acct.Name != "alice" || acct.Version != 1 {
		t.Errorf("unexpected account after reload: %+v", acct)
	}
}

func TestJSONAdapter_DefaultBalanceForUnknown(t *testing.T) {
	adapter := newTestJSONAdapter(t)

	balance, err := adapter.GetBalance(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected default 1000 for unknown account, got %s", balance)
	}
}

func TestJSONAdapter_CheckAndSetBalance(t *testing.T) {
	ctx := context.Background()
	adapter := newTestJSONAdapter(t)

	id := uuid.New()
	if err := adapter.CreateAccount(ctx, id, "bob"); err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := adapter.CheckAndSetBalance(ctx, id, decimal.NewFromInt(50), 0)
	if err != nil || !ok {
		t.Fatalf("expected CAS at version 0 to succeed, got ok=%v err=%v", ok, err)
	}

	// Stale version must fail without changing anything.
	ok, err = adapter.CheckAndSetBalance(ctx, id, decimal.NewFromInt(9999), 0)
	if err != nil {
		t.Fatalf("cas: %v", err)
	}
	if ok {
		t.Fatal("expected CAS at stale version to fail")
	}

	acct, _ := adapter.GetAccount(ctx, id)
	if !acct.Balance.Equal(decimal.NewFromInt(50)) || acct.Version != 1 {
		t.Errorf("expected 50 at version 1, got %s at version %d", acct.Balance, acct.Version)
	}
}

func TestJSONAdapter_FailedCheckAndSetLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	adapter := newTestJSONAdapter(t)

	id := uuid.New()
	ok, err := adapter.CheckAndSetBalance(ctx, id, decimal.NewFromInt(5), 7)
	if err != nil {
		t.Fatalf("cas: %v", err)
	}
	if ok {
		t.Fatal("conditional write against a missing account must fail")
	}

	has, err := adapter.HasAccount(ctx, id)
	if err != nil {
		t.Fatalf("has: %v", err)
	}
	if has {
		t.Fatal("failed conditional write must not create the account")
	}
	acct, err := adapter.GetAccount(ctx, id)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acct != nil {
		t.Fatalf("expected no record, got %+v", acct)
	}
}

func TestJSONAdapter_GetUUIDIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	adapter := newTestJSONAdapter(t)

	id := uuid.New()
	if err := adapter.CreateAccount(ctx, id, "Carol"); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, ok, err := adapter.GetUUID(ctx, "cAROl")
	if err != nil || !ok {
		t.Fatalf("expected lookup to succeed, got ok=%v err=%v", ok, err)
	}
	if got != id {
		t.Errorf("expected %s, got %s", id, got)
	}

	_, ok, err = adapter.GetUUID(ctx, "nobody")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if ok {
		t.Error("expected lookup of unknown name to miss")
	}
}

func TestJSONAdapter_GetTopAccounts(t *testing.T) {
	ctx := context.Background()
	adapter := newTestJSONAdapter(t)

	balances := map[string]int64{"low": 10, "high": 300, "mid": 200}
	for name, amount := range balances {
		id := uuid.New()
		if err := adapter.CreateAccount(ctx, id, name); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := adapter.SetBalance(ctx, id, decimal.NewFromInt(amount)); err != nil {
			t.Fatalf("set: %v", err)
		}
	}

	top, err := adapter.GetTopAccounts(ctx, 2)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(top))
	}
	if top[0].Name != "high" || top[1].Name != "mid" {
		t.Errorf("expected high, mid; got %s, %s", top[0].Name, top[1].Name)
	}
}

func TestJSONAdapter_DeleteAccount(t *testing.T) {
	ctx := context.Background()
	adapter := newTestJSONAdapter(t)

	id := uuid.New()
	if err := adapter.CreateAccount(ctx, id, "doomed"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := adapter.DeleteAccount(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}

	ok, err := adapter.HasAccount(ctx, id)
	if err != nil {
		t.Fatalf("has: %v", err)
	}
	if ok {
		t.Error("expected account gone after delete")
	}

	// Deleting a missing account is a no-op.
	if err := adapter.DeleteAccount(ctx, id); err != nil {
		t.Errorf("delete of missing account should not error: %v", err)
	}
}

func TestJSONAdapter_CreateRefreshesNameOnly(t *testing.T) {
	ctx := context.Background()
	adapter := newTestJSONAdapter(t)

	id := uuid.New()
	if err := adapter.CreateAccount(ctx, id, "old"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := adapter.SetBalance(ctx, id, decimal.NewFromInt(55)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := adapter.CreateAccount(ctx, id, "new"); err != nil {
		t.Fatalf("re-create: %v", err)
	}

	acct, _ := adapter.GetAccount(ctx, id)
	if acct.Name != "new" {
		t.Errorf("expected name refreshed, got %s", acct.Name)
	}
	if !acct.Balance.Equal(decimal.NewFromInt(55)) || acct.Version != 1 {
		t.Errorf("balance/version must survive re-create, got %s at version %d", acct.Balance, acct.Version)
	}
}
