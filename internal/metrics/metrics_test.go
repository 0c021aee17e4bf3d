package metrics_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onexdata/stock-portfolio-analysis/internal/domain"
	"github.com/onexdata/stock-portfolio-analysis/internal/metrics"
)

func fastDelay() metrics.DelayRange {
	return metrics.DelayRange{Min: time.Millisecond, Max: 2 * time.Millisecond}
}

func sampleSnapshot() domain.Snapshot {
	return domain.Snapshot{
		SessionID:  "s-1",
		Holdings:   map[string]int64{"AAPL": 100, "GOOGL": 50, "MSFT": 75},
		TotalValue: 125000.0,
	}
}

func TestKernels_AreDeterministicGivenSameSeed(t *testing.T) {
	registry := metrics.NewRegistry(fastDelay())
	snap := sampleSnapshot()

	for name, kernel := range registry {
		seed := metrics.SeedFor("s-1", "AAPL", 1, name)
		v1, err := kernel(context.Background(), "AAPL", snap, rand.New(rand.NewSource(seed)))
		require.NoError(t, err)
		v2, err := kernel(context.Background(), "AAPL", snap, rand.New(rand.NewSource(seed)))
		require.NoError(t, err)
		assert.Equal(t, v1, v2, "kernel %s must be deterministic for a fixed seed", name)
	}
}

func TestKernels_RespectCancellation(t *testing.T) {
	registry := metrics.NewRegistry(metrics.DelayRange{Min: time.Second, Max: 2 * time.Second})
	snap := sampleSnapshot()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for name, kernel := range registry {
		_, err := kernel(ctx, "AAPL", snap, rand.New(rand.NewSource(1)))
		assert.ErrorIs(t, err, context.Canceled, "kernel %s must return ctx.Err() on cancellation", name)
	}
}

func TestConcentration_BoundedZeroToOne(t *testing.T) {
	snap := sampleSnapshot()
	v, err := metrics.Concentration(context.Background(), "AAPL", snap, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, v, 0.0)
	assert.LessOrEqual(t, v, 1.0)
}

func TestConcentration_EmptyHoldings_NoDivisionByZero(t *testing.T) {
	snap := domain.Snapshot{Holdings: map[string]int64{}, TotalValue: 0}
	v, err := metrics.Concentration(context.Background(), "AAPL", snap, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestAllocationScore_BoundedNegativeOneToOne(t *testing.T) {
	snap := sampleSnapshot()
	v, err := metrics.AllocationScore(context.Background(), "AAPL", snap, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, v, -1.0)
	assert.LessOrEqual(t, v, 1.0)
}

func TestAllocationScore_TickerAbsentFromHoldings_StillProducesResult(t *testing.T) {
	snap := sampleSnapshot()
	v, err := metrics.AllocationScore(context.Background(), "TSLA", snap, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, v, -1.0)
	assert.LessOrEqual(t, v, 1.0)
}

func TestCorrelationAndMomentum_BoundedNegativeOneToOne(t *testing.T) {
	snap := sampleSnapshot()
	for i := 0; i < 20; i++ {
		rng := rand.New(rand.NewSource(int64(i)))
		c, err := metrics.Correlation(context.Background(), "AAPL", snap, rng)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, c, -1.0)
		assert.LessOrEqual(t, c, 1.0)

		m, err := metrics.Momentum(context.Background(), "AAPL", snap, rng)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, m, -1.0)
		assert.LessOrEqual(t, m, 1.0)
	}
}

func TestSeedFor_DiffersByTicker(t *testing.T) {
	a := metrics.SeedFor("s-1", "AAPL", 1, "momentum")
	b := metrics.SeedFor("s-1", "GOOGL", 1, "momentum")
	assert.NotEqual(t, a, b)
}

func TestSeedFor_DiffersByGeneration(t *testing.T) {
	a := metrics.SeedFor("s-1", "AAPL", 1, "momentum")
	b := metrics.SeedFor("s-1", "AAPL", 2, "momentum")
	assert.NotEqual(t, a, b)
}
