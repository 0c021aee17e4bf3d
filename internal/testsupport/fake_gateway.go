// Package testsupport holds hand-written fakes shared across this
// module's test suites, so no package re-implements the same fake
// Gateway. Grounded on the teacher's internal/testing/mocks.go: a
// mutex-guarded struct with SetError/SetX setters, no mocking framework.
package testsupport

import (
	"context"
	"sync"
	"time"

	"github.com/onexdata/stock-portfolio-analysis/internal/domain"
	"github.com/onexdata/stock-portfolio-analysis/internal/gateway"
)

// FakeGateway is an in-memory Gateway implementation for tests that don't
// need a live document store.
type FakeGateway struct {
	mu   sync.Mutex
	docs map[string]*domain.SessionDocument
	err  error

	beginAnalysisHook func(sessionID, ticker string)
}

// NewFakeGateway builds an empty FakeGateway.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{docs: make(map[string]*domain.SessionDocument)}
}

// SetError makes every subsequent call fail with err.
func (f *FakeGateway) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// SetBeginAnalysisHook installs a callback invoked synchronously inside
// BeginAnalysis, before it returns, useful for racing a market update
// against an in-flight run in tests.
func (f *FakeGateway) SetBeginAnalysisHook(hook func(sessionID, ticker string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beginAnalysisHook = hook
}

// Doc returns a defensive copy of the stored document, for assertions.
func (f *FakeGateway) Doc(sessionID string) (domain.SessionDocument, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[sessionID]
	if !ok {
		return domain.SessionDocument{}, false
	}
	return doc.Clone(), true
}

func (f *FakeGateway) Ensure(ctx context.Context, sessionID string, initial domain.SessionDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.docs[sessionID]; ok {
		return nil
	}
	doc := initial.Clone()
	f.docs[sessionID] = &doc
	return nil
}

func (f *FakeGateway) Read(ctx context.Context, sessionID string) (*domain.SessionDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	doc, ok := f.docs[sessionID]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	clone := doc.Clone()
	return &clone, nil
}

func (f *FakeGateway) BeginAnalysis(ctx context.Context, sessionID, ticker string, startedAt time.Time) (*domain.SessionDocument, error) {
	f.mu.Lock()
	hook := f.beginAnalysisHook
	if f.err != nil {
		err := f.err
		f.mu.Unlock()
		return nil, err
	}
	doc, ok := f.docs[sessionID]
	if !ok {
		f.mu.Unlock()
		return nil, gateway.ErrNotFound
	}
	doc.CurrentAnalysis = &domain.CurrentAnalysis{Ticker: ticker, StartedAt: startedAt}
	doc.LastActivity = startedAt
	clone := doc.Clone()
	f.mu.Unlock()

	if hook != nil {
		hook(sessionID, ticker)
	}
	return &clone, nil
}

func (f *FakeGateway) AppendResult(ctx context.Context, sessionID string, result domain.ResultRecord, lastActivity time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	doc, ok := f.docs[sessionID]
	if !ok {
		return gateway.ErrNotFound
	}
	doc.AnalysisResults = append(doc.AnalysisResults, result)
	doc.LastActivity = lastActivity
	return nil
}

func (f *FakeGateway) ApplyMarketUpdate(ctx context.Context, sessionID string, prices map[string]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	doc, ok := f.docs[sessionID]
	if !ok {
		return gateway.ErrNotFound
	}
	var total float64
	for ticker, shares := range doc.Holdings {
		if price, ok := prices[ticker]; ok {
			total += float64(shares) * price
		}
	}
	doc.TotalValue = total
	doc.LastActivity = time.Now().UTC()
	return nil
}

func (f *FakeGateway) ListSessions(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	ids := make([]string, 0, len(f.docs))
	for id := range f.docs {
		ids = append(ids, id)
	}
	return ids, nil
}

var _ gateway.Gateway = (*FakeGateway)(nil)
