package service

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/quartzlabs/econd/internal/core/domain"
	"github.com/quartzlabs/econd/internal/port"
)

const auditTimeLayout = "2006-01-02 15:04:05"

// Line format: [2006-01-02 15:04:05] [category] source -> target: amount (detail)
var auditLineRe = regexp.MustCompile(`^\[([^\]]+)\] \[([^\]]+)\] (.*?) -> (.*): (\S+) \((.*)\)$`)

// AuditLog records every balance mutation for later inspection. Submission
// is fire-and-forget: entries go through a bounded queue drained by a single
// worker, so audit writes never block the mutation path. Per-process
// submission order is preserved; ordering across processes is not.
//
// Entries land in the backend's transaction table when it has one, otherwise
// in an append-only text file.
type AuditLog struct {
	store port.Storage
	file  string
	log   *logrus.Logger

	queue     chan domain.AuditEntry
	done      chan struct{}
	closeOnce sync.Once
}

// NewAuditLog starts the worker. file is the fallback log path used when the
// backend has no structured transaction table.
func NewAuditLog(store port.Storage, file string, queueSize int, log *logrus.Logger) *AuditLog {
	if queueSize <= 0 {
		queueSize = 1024
	}
	a := &AuditLog{
		store: store,
		file:  file,
		log:   log,
		queue: make(chan domain.AuditEntry, queueSize),
		done:  make(chan struct{}),
	}
	go a.worker()
	return a
}

// Log submits one entry. Never blocks: when the queue is full the entry is
// dropped with a warning.
func (a *AuditLog) Log(category, source, target string, amount decimal.Decimal, detail string) {
	entry := domain.AuditEntry{
		Timestamp: time.Now(),
		Category:  category,
		Source:    source,
		Target:    target,
		Amount:    amount,
		Detail:    detail,
	}

	select {
	case a.queue <- entry:
	default:
		a.log.WithFields(logrus.Fields{
			"category": category,
			"source":   source,
			"target":   target,
		}).Warn("audit queue full, entry dropped")
	}
}

// Search returns entries newer than cutoff, newest first. target "*" matches
// everything, otherwise a case-insensitive substring match against source or
// target. Malformed lines in the fallback file are skipped, not fatal.
func (a *AuditLog) Search(ctx context.Context, target string, cutoff time.Time) ([]domain.AuditEntry, error) {
	if a.store != nil && a.store.SupportsTransactionLog() {
		return a.store.SearchLogs(ctx, target, cutoff)
	}
	return a.searchFile(target, cutoff)
}

// Close stops accepting entries and drains the queue. Safe to call more than
// once.
func (a *AuditLog) Close() {
	a.closeOnce.Do(func() {
		close(a.queue)
		<-a.done
	})
}

func (a *AuditLog) worker() {
	defer close(a.done)
	for entry := range a.queue {
		a.write(entry)
	}
}

func (a *AuditLog) write(entry domain.AuditEntry) {
	if a.store != nil && a.store.SupportsTransactionLog() {
		if err := a.store.LogTransaction(context.Background(), entry); err != nil {
			a.log.WithError(err).Warn("audit write to backend failed")
		}
		return
	}

	if err := a.appendFile(entry); err != nil {
		a.log.WithError(err).Warn("audit write to file failed")
	}
}

func (a *AuditLog) appendFile(entry domain.AuditEntry) error {
	if err := os.MkdirAll(filepath.Dir(a.file), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(a.file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "[%s] [%s] %s -> %s: %s (%s)\n",
		entry.Timestamp.Format(auditTimeLayout), entry.Category,
		entry.Source, entry.Target, entry.Amount.String(), entry.Detail)
	return err
}

func (a *AuditLog) searchFile(target string, cutoff time.Time) ([]domain.AuditEntry, error) {
	f, err := os.Open(a.file)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	needle := strings.ToLower(target)
	var results []domain.AuditEntry

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		entry, ok := parseAuditLine(scanner.Text())
		if !ok {
			continue
		}
		if !entry.Timestamp.After(cutoff) {
			continue
		}
		if target != "*" &&
			!strings.Contains(strings.ToLower(entry.Source), needle) &&
			!strings.Contains(strings.ToLower(entry.Target), needle) {
			continue
		}
		results = append(results, entry)
	}
	if err := scanner.Err(); err != nil {
		return results, fmt.Errorf("scan audit log: %w", err)
	}

	// File order is oldest first; callers expect newest first.
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}

func parseAuditLine(line string) (domain.AuditEntry, bool) {
	m := auditLineRe.FindStringSubmatch(line)
	if m == nil {
		return domain.AuditEntry{}, false
	}
	ts, err := time.ParseInLocation(auditTimeLayout, m[1], time.Local)
	if err != nil {
		return domain.AuditEntry{}, false
	}
	amount, err := decimal.NewFromString(m[5])
	if err != nil {
		return domain.AuditEntry{}, false
	}
	return domain.AuditEntry{
		Timestamp: ts,
		Category:  m[2],
		Source:    m[3],
		Target:    m[4],
		Amount:    amount,
		Detail:    m[6],
	}, true
}
