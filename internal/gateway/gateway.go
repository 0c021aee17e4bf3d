// Package gateway is the only component that issues mutations against the
// document store. It registers server-side scripts once at startup and
// invokes them by handle thereafter, so that no two concurrent mutations
// on the same session can interleave their read/modify/write phases.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/onexdata/stock-portfolio-analysis/internal/domain"
)

// ErrNotFound is returned when an operation addresses a session key that
// does not exist in the store. Mirrors sql.ErrNoRows in spirit: a sentinel
// callers check with errors.Is, not a wrapped transport error.
var ErrNotFound = errors.New("gateway: session not found")

// Gateway exposes the six atomic operations the spec requires. Every
// mutating operation refreshes the key's TTL to the configured session TTL
// as part of the same server-side script rather than a separate round trip.
type Gateway interface {
	// Ensure creates the session document if absent (create-if-absent,
	// single command). No-op if the key already exists.
	Ensure(ctx context.Context, sessionID string, initial domain.SessionDocument) error

	// Read returns the full document for sessionID, refreshing its TTL.
	// Returns ErrNotFound if the key does not exist.
	Read(ctx context.Context, sessionID string) (*domain.SessionDocument, error)

	// BeginAnalysis atomically sets current_analysis and last_activity,
	// then returns the full post-mutation document. This is the snapshot
	// the caller's analysis run will use for its lifetime.
	BeginAnalysis(ctx context.Context, sessionID, ticker string, startedAt time.Time) (*domain.SessionDocument, error)

	// AppendResult atomically appends one result record to
	// analysis_results (O(1) server-side append) and sets last_activity.
	AppendResult(ctx context.Context, sessionID string, result domain.ResultRecord, lastActivity time.Time) error

	// ApplyMarketUpdate atomically recomputes total_value from holdings
	// and the given prices, writing total_value and last_activity. Never
	// touches current_analysis or analysis_results.
	ApplyMarketUpdate(ctx context.Context, sessionID string, prices map[string]float64) error

	// ListSessions returns a snapshot of live session ids.
	ListSessions(ctx context.Context) ([]string, error)
}
