package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quartzlabs/econd/internal/core/domain"
)

type jsonRecord struct {
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
	Version int64           `json:"version"`
}

// JSONAdapter is the embedded single-process backend: the full account set
// lives in memory and is rewritten to one JSON document on every mutating
// write. Simplicity over write amplification, acceptable at the scale of a
// single server's player base.
//
// It has no structured transaction table; audit entries go through the
// file-based fallback.
type JSONAdapter struct {
	path           string
	defaultBalance decimal.Decimal

	mu       sync.RWMutex
	accounts map[uuid.UUID]*jsonRecord
}

func NewJSONAdapter(path string, defaultBalance decimal.Decimal) *JSONAdapter {
	return &JSONAdapter{
		path:           path,
		defaultBalance: defaultBalance,
		accounts:       make(map[uuid.UUID]*jsonRecord),
	}
}

func (j *JSONAdapter) Load(ctx context.Context) error {
	data, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read balance file: %w", err)
	}

	loaded := make(map[uuid.UUID]*jsonRecord)
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parse balance file: %w", err)
	}

	j.mu.Lock()
	j.accounts = loaded
	j.mu.Unlock()
	return nil
}

func (j *JSONAdapter) Close(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.persistLocked()
}

func (j *JSONAdapter) GetBalance(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if rec, ok := j.accounts[id]; ok {
		return rec.Balance, nil
	}
	return j.defaultBalance, nil
}

func (j *JSONAdapter) SetBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	rec := j.ensureLocked(id)
	rec.Balance = amount
	rec.Version++
	return j.persistLocked()
}

func (j *JSONAdapter) CheckAndSetBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal, expectedVersion int64) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	// A missing account is a version mismatch, not an implicit create; a
	// failed conditional write must leave no trace.
	rec, ok := j.accounts[id]
	if !ok || rec.Version != expectedVersion {
		return false, nil
	}
	rec.Balance = amount
	rec.Version++
	if err := j.persistLocked(); err != nil {
		return false, err
	}
	return true, nil
}

func (j *JSONAdapter) HasAccount(ctx context.Context, id uuid.UUID) (bool, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	_, ok := j.accounts[id]
	return ok, nil
}

func (j *JSONAdapter) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	rec, ok := j.accounts[id]
	if !ok {
		return nil, nil
	}
	return &domain.Account{ID: id, Name: rec.Name, Balance: rec.Balance, Version: rec.Version}, nil
}

func (j *JSONAdapter) CreateAccount(ctx context.Context, id uuid.UUID, name string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if rec, ok := j.accounts[id]; ok {
		if rec.Name == name {
			return nil
		}
		rec.Name = name
		return j.persistLocked()
	}

	j.accounts[id] = &jsonRecord{Name: name, Balance: j.defaultBalance}
	return j.persistLocked()
}

func (j *JSONAdapter) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.accounts[id]; !ok {
		return nil
	}
	delete(j.accounts, id)
	return j.persistLocked()
}

func (j *JSONAdapter) GetUUID(ctx context.Context, name string) (uuid.UUID, bool, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for id, rec := range j.accounts {
		if strings.EqualFold(rec.Name, name) {
			return id, true, nil
		}
	}
	return uuid.Nil, false, nil
}

func (j *JSONAdapter) GetOfflineNames(ctx context.Context) ([]string, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	names := make([]string, 0, len(j.accounts))
	for _, rec := range j.accounts {
		names = append(names, rec.Name)
	}
	return names, nil
}

func (j *JSONAdapter) GetTopAccounts(ctx context.Context, limit int) ([]domain.Account, error) {
	j.mu.RLock()
	accounts := make([]domain.Account, 0, len(j.accounts))
	for id, rec := range j.accounts {
		accounts = append(accounts, domain.Account{ID: id, Name: rec.Name, Balance: rec.Balance, Version: rec.Version})
	}
	j.mu.RUnlock()

	sort.Slice(accounts, func(a, b int) bool {
		return accounts[a].Balance.GreaterThan(accounts[b].Balance)
	})
	if limit > 0 && len(accounts) > limit {
		accounts = accounts[:limit]
	}
	return accounts, nil
}

// LogTransaction is a no-op: the embedded backend relies on the audit log's
// file fallback.
func (j *JSONAdapter) LogTransaction(ctx context.Context, entry domain.AuditEntry) error {
	return nil
}

func (j *JSONAdapter) SearchLogs(ctx context.Context, target string, cutoff time.Time) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (j *JSONAdapter) SupportsTransactionLog() bool { return false }

// ensureLocked returns the record for id, creating it with the default
// balance when absent. Callers hold the write lock.
func (j *JSONAdapter) ensureLocked(id uuid.UUID) *jsonRecord {
	rec, ok := j.accounts[id]
	if !ok {
		rec = &jsonRecord{Name: "Unknown", Balance: j.defaultBalance}
		j.accounts[id] = rec
	}
	return rec
}

// persistLocked rewrites the whole document atomically (temp file + rename).
// Callers hold the write lock.
func (j *JSONAdapter) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	data, err := json.MarshalIndent(j.accounts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode balances: %w", err)
	}

	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write balances: %w", err)
	}
	if err := os.Rename(tmp, j.path); err != nil {
		return fmt.Errorf("replace balance file: %w", err)
	}
	return nil
}
