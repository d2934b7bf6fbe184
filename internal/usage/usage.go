// Package usage decides whether a user may convert and records finished
// conversions.
package usage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StatusSuccess is the only status written today; failed runs do not count.
const StatusSuccess = "success"

// Record is one finished conversion.
type Record struct {
	ID               string
	UserID           string
	SessionID        string
	Filenames        []string
	TransactionCount int
	Status           string
	CreatedAt        time.Time
}

// Filename returns the comma separated file list stored with the record.
func (r Record) Filename() string {
	return strings.Join(r.Filenames, ", ")
}

// Ledger persists conversion records.
type Ledger interface {
	Append(ctx context.Context, rec Record) error
	CountSince(ctx context.Context, userID string, since time.Time) (int, error)
	List(ctx context.Context, userID string, limit int) ([]Record, error)
}

// DefaultHistoryLimit caps History when the caller gives no limit.
const DefaultHistoryLimit = 50

// Gate enforces a monthly conversion limit on top of a Ledger.
type Gate struct {
	ledger Ledger
	limit  int
	now    func() time.Time
}

// NewGate creates a gate allowing monthlyLimit successful conversions per
// calendar month. A negative limit disables the check.
func NewGate(ledger Ledger, monthlyLimit int) *Gate {
	return &Gate{ledger: ledger, limit: monthlyLimit, now: time.Now}
}

// CanConvert reports whether userID has conversions left this month.
func (g *Gate) CanConvert(ctx context.Context, userID string) (bool, error) {
	if g.limit < 0 {
		return true, nil
	}
	used, err := g.ledger.CountSince(ctx, userID, startOfMonth(g.now()))
	if err != nil {
		return false, fmt.Errorf("CanConvert: %w", err)
	}
	return used < g.limit, nil
}

// Remaining returns how many conversions userID has left, or -1 when unlimited.
func (g *Gate) Remaining(ctx context.Context, userID string) (int, error) {
	if g.limit < 0 {
		return -1, nil
	}
	used, err := g.ledger.CountSince(ctx, userID, startOfMonth(g.now()))
	if err != nil {
		return 0, fmt.Errorf("Remaining: %w", err)
	}
	if used >= g.limit {
		return 0, nil
	}
	return g.limit - used, nil
}

// History returns the latest conversions of userID, newest first.
// A limit of zero or less uses DefaultHistoryLimit.
func (g *Gate) History(ctx context.Context, userID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	records, err := g.ledger.List(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("History: %w", err)
	}
	return records, nil
}

// RecordConversion appends rec to the ledger, filling ID, status and time.
func (g *Gate) RecordConversion(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = StatusSuccess
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = g.now()
	}
	if err := g.ledger.Append(ctx, rec); err != nil {
		return fmt.Errorf("RecordConversion: %w", err)
	}
	return nil
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
