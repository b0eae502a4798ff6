// Package sequence hands out human-readable document numbers (ORD-0001,
// REQ-0001) from counter rows locked inside the caller's transaction.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

// Domain names a numbering sequence. Its value is the number prefix.
type Domain string

const (
	// Orders numbers orders as ORD-NNNN.
	Orders Domain = "ORD"
	// Requisitions numbers requisitions as REQ-NNNN.
	Requisitions Domain = "REQ"
)

// Counter returns the next value of a domain. Implementations must never hand
// the same value to two callers.
type Counter interface {
	Next(ctx context.Context, domain Domain) (int64, error)
}

// Format renders n with the domain prefix and at least four digits. Wider
// numbers keep all their digits.
func Format(domain Domain, n int64) string {
	return fmt.Sprintf("%s-%04d", domain, n)
}

// Number draws the next value from c and formats it.
func Number(ctx context.Context, c Counter, domain Domain) (string, error) {
	n, err := c.Next(ctx, domain)
	if err != nil {
		return "", err
	}
	return Format(domain, n), nil
}

// TxCounter increments counter rows through an open transaction. The row lock
// is held until that transaction ends, so the value is consumed atomically with
// whatever the caller writes.
type TxCounter struct {
	q db.DBTX
}

// NewTxCounter binds a counter to q, normally a pgx.Tx.
func NewTxCounter(q db.DBTX) *TxCounter {
	return &TxCounter{q: q}
}

// Next locks the domain row, increments it and returns the new value.
func (c *TxCounter) Next(ctx context.Context, domain Domain) (int64, error) {
	if domain == "" {
		return 0, errors.New("sequence: domain required")
	}
	if _, err := c.q.Exec(ctx, `INSERT INTO sequence_counters (name, value) VALUES ($1, 0) ON CONFLICT (name) DO NOTHING`, string(domain)); err != nil {
		return 0, fmt.Errorf("sequence: ensure %s: %w", domain, err)
	}
	var current int64
	err := c.q.QueryRow(ctx, `SELECT value FROM sequence_counters WHERE name = $1 FOR UPDATE`, string(domain)).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("sequence: counter %s missing", domain)
		}
		return 0, fmt.Errorf("sequence: lock %s: %w", domain, err)
	}
	next := current + 1
	if _, err := c.q.Exec(ctx, `UPDATE sequence_counters SET value = $2, updated_at = NOW() WHERE name = $1`, string(domain), next); err != nil {
		return 0, fmt.Errorf("sequence: advance %s: %w", domain, err)
	}
	return next, nil
}

// Memory is an in-process Counter. The mutex plays the role of the row lock.
type Memory struct {
	mu     sync.Mutex
	values map[Domain]int64
}

// NewMemory constructs an empty Memory counter.
func NewMemory() *Memory {
	return &Memory{values: make(map[Domain]int64)}
}

// Next implements Counter.
func (m *Memory) Next(_ context.Context, domain Domain) (int64, error) {
	if domain == "" {
		return 0, errors.New("sequence: domain required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[domain]++
	return m.values[domain], nil
}

// Seed sets the current value of domain.
func (m *Memory) Seed(domain Domain, value int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[domain] = value
}
