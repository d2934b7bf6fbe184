package usage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryLedger keeps records in process memory. It is used by tests and by
// deployments without BigQuery.
type MemoryLedger struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

// Append stores a copy of rec.
func (l *MemoryLedger) Append(ctx context.Context, rec Record) error {
	rec.Filenames = append([]string(nil), rec.Filenames...)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

// CountSince counts successful records for userID created at or after since.
func (l *MemoryLedger) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, r := range l.records {
		if r.UserID == userID && r.Status == StatusSuccess && !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// List returns up to limit records of userID, newest first.
func (l *MemoryLedger) List(ctx context.Context, userID string, limit int) ([]Record, error) {
	l.mu.RLock()
	var out []Record
	for _, r := range l.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	l.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Records returns a copy of all stored records.
func (l *MemoryLedger) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Record(nil), l.records...)
}

var _ Ledger = (*MemoryLedger)(nil)
