package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onexdata/stock-portfolio-analysis/internal/domain"
	"github.com/onexdata/stock-portfolio-analysis/internal/repository"
	"github.com/onexdata/stock-portfolio-analysis/internal/testsupport"
)

func TestNextPrice_UnknownTicker_DefaultsToBasePrice(t *testing.T) {
	u := NewUpdater(nil, time.Second, map[string]float64{}, zerolog.Nop())
	price := u.nextPrice("AAPL")
	assert.InDelta(t, unknownTickerBasePrice, price, unknownTickerBasePrice*0.02+0.0001)
}

func TestNextPrice_WalksWithinTwoPercentBounds(t *testing.T) {
	u := NewUpdater(nil, time.Second, map[string]float64{"AAPL": 150.0}, zerolog.Nop())
	for i := 0; i < 100; i++ {
		before := u.prices["AAPL"]
		after := u.nextPrice("AAPL")
		assert.GreaterOrEqual(t, after, before*0.98)
		assert.LessOrEqual(t, after, before*1.02)
	}
}

func TestNextPrice_NeverNegative(t *testing.T) {
	u := NewUpdater(nil, time.Second, map[string]float64{"AAPL": 0.001}, zerolog.Nop())
	for i := 0; i < 1000; i++ {
		price := u.nextPrice("AAPL")
		assert.GreaterOrEqual(t, price, 0.0)
	}
}

// failingReadGateway wraps a FakeGateway and fails Read for one session id,
// for exercising tick's per-session skip path.
type failingReadGateway struct {
	*testsupport.FakeGateway
	failID string
}

func (f *failingReadGateway) Read(ctx context.Context, sessionID string) (*domain.SessionDocument, error) {
	if sessionID == f.failID {
		return nil, errors.New("simulated read failure")
	}
	return f.FakeGateway.Read(ctx, sessionID)
}

func TestTick_SkipsSessionOnReadError_ContinuesLoop(t *testing.T) {
	fake := testsupport.NewFakeGateway()
	repo := repository.New(&failingReadGateway{FakeGateway: fake, failID: "s-1"})
	require.NoError(t, repo.Ensure(context.Background(), "s-1", domain.SessionDocument{
		SessionID: "s-1",
		Holdings:  map[string]int64{"AAPL": 10},
	}))
	require.NoError(t, repo.Ensure(context.Background(), "s-2", domain.SessionDocument{
		SessionID: "s-2",
		Holdings:  map[string]int64{"MSFT": 5},
	}))

	u := NewUpdater(repo, time.Second, map[string]float64{"AAPL": 150.0, "MSFT": 300.0}, zerolog.Nop())
	u.tick(context.Background())

	doc1, ok := fake.Doc("s-1")
	require.True(t, ok)
	assert.Equal(t, 0.0, doc1.TotalValue, "a session whose read fails must be skipped")

	doc2, ok := fake.Doc("s-2")
	require.True(t, ok)
	assert.Greater(t, doc2.TotalValue, 0.0)
}

func TestTick_NoSessions_NoOp(t *testing.T) {
	fake := testsupport.NewFakeGateway()
	repo := repository.New(fake)
	u := NewUpdater(repo, time.Second, map[string]float64{}, zerolog.Nop())
	u.tick(context.Background())
}

func TestStartStop_RunsAndStopsCleanly(t *testing.T) {
	fake := testsupport.NewFakeGateway()
	repo := repository.New(fake)
	require.NoError(t, repo.Ensure(context.Background(), "s-1", domain.SessionDocument{
		SessionID: "s-1",
		Holdings:  map[string]int64{"AAPL": 10},
	}))

	u := NewUpdater(repo, 5*time.Millisecond, map[string]float64{"AAPL": 150.0}, zerolog.Nop())
	u.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	u.Stop()

	doc, err := repo.Read(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Greater(t, doc.TotalValue, 0.0)
}
