// Package repository is a typed, validating facade over the gateway. It
// carries no business logic of its own and adds no retries beyond what
// the gateway already does internally, its only job is to reject
// malformed input before it ever reaches a script argument.
package repository

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/onexdata/stock-portfolio-analysis/internal/domain"
	"github.com/onexdata/stock-portfolio-analysis/internal/gateway"
)

// Snapshot is the read-only document handed to one analysis run. Aliased
// here so internal/metrics can name it without importing internal/domain
// directly.
type Snapshot = domain.Snapshot

// tickerPattern matches the ticker grammar: one leading letter, then up
// to nine more letters, digits, or dots (covers suffixed symbols like
// BRK.B without admitting arbitrary punctuation).
var tickerPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.]{0,9}$`)

// clockSkew bounds how far a caller-supplied timestamp may drift from
// wall-clock time before Repository rejects it outright.
const clockSkew = 5 * time.Minute

// Repository wraps a Gateway with ticker and timestamp validation.
type Repository struct {
	gw gateway.Gateway
}

// New builds a Repository over gw.
func New(gw gateway.Gateway) *Repository {
	return &Repository{gw: gw}
}

func validateTicker(ticker string) error {
	if !tickerPattern.MatchString(ticker) {
		return fmt.Errorf("repository: invalid ticker %q", ticker)
	}
	return nil
}

func validateHoldings(holdings map[string]int64) error {
	for ticker, shares := range holdings {
		if err := validateTicker(ticker); err != nil {
			return err
		}
		if shares < 0 {
			return fmt.Errorf("repository: negative share count for %q", ticker)
		}
	}
	return nil
}

func validateTimestamp(t time.Time) error {
	now := time.Now()
	if t.After(now.Add(clockSkew)) || t.Before(now.Add(-clockSkew)) {
		return fmt.Errorf("repository: timestamp %s outside allowed skew window", t)
	}
	return nil
}

// Ensure creates the session document if it does not already exist.
func (r *Repository) Ensure(ctx context.Context, sessionID string, initial domain.SessionDocument) error {
	if err := validateHoldings(initial.Holdings); err != nil {
		return err
	}
	return r.gw.Ensure(ctx, sessionID, initial)
}

// Read returns the full document for sessionID.
func (r *Repository) Read(ctx context.Context, sessionID string) (*domain.SessionDocument, error) {
	return r.gw.Read(ctx, sessionID)
}

// BeginAnalysis atomically marks the start of a new analysis run and
// returns the snapshot it must run against.
func (r *Repository) BeginAnalysis(ctx context.Context, sessionID, ticker string, startedAt time.Time) (*Snapshot, error) {
	if err := validateTicker(ticker); err != nil {
		return nil, err
	}
	if err := validateTimestamp(startedAt); err != nil {
		return nil, err
	}
	return r.gw.BeginAnalysis(ctx, sessionID, ticker, startedAt)
}

// AppendResult persists one metric result.
func (r *Repository) AppendResult(ctx context.Context, sessionID string, result domain.ResultRecord, lastActivity time.Time) error {
	if err := validateTicker(result.Ticker); err != nil {
		return err
	}
	if err := validateTimestamp(lastActivity); err != nil {
		return err
	}
	return r.gw.AppendResult(ctx, sessionID, result, lastActivity)
}

// ApplyMarketUpdate recomputes total_value from the given prices.
func (r *Repository) ApplyMarketUpdate(ctx context.Context, sessionID string, prices map[string]float64) error {
	for ticker := range prices {
		if err := validateTicker(ticker); err != nil {
			return err
		}
	}
	return r.gw.ApplyMarketUpdate(ctx, sessionID, prices)
}

// ListSessions enumerates live session ids.
func (r *Repository) ListSessions(ctx context.Context) ([]string, error) {
	return r.gw.ListSessions(ctx)
}

// ErrNotFound re-exports gateway.ErrNotFound so callers never need to
// import internal/gateway just to check errors.Is against it.
var ErrNotFound = gateway.ErrNotFound
