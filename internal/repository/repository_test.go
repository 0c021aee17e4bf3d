package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onexdata/stock-portfolio-analysis/internal/domain"
	"github.com/onexdata/stock-portfolio-analysis/internal/gateway"
	"github.com/onexdata/stock-portfolio-analysis/internal/repository"
	"github.com/onexdata/stock-portfolio-analysis/internal/testsupport"
)

func TestEnsure_RejectsInvalidTicker(t *testing.T) {
	repo := repository.New(testsupport.NewFakeGateway())
	err := repo.Ensure(context.Background(), "s-1", domain.SessionDocument{
		Holdings: map[string]int64{"aapl": 10},
	})
	assert.Error(t, err)
}

func TestEnsure_RejectsNegativeShares(t *testing.T) {
	repo := repository.New(testsupport.NewFakeGateway())
	err := repo.Ensure(context.Background(), "s-1", domain.SessionDocument{
		Holdings: map[string]int64{"AAPL": -1},
	})
	assert.Error(t, err)
}

func TestEnsureThenRead_RoundTrips(t *testing.T) {
	repo := repository.New(testsupport.NewFakeGateway())
	now := time.Now().UTC()
	init := domain.SessionDocument{
		SessionID:    "s-1",
		Holdings:     map[string]int64{"AAPL": 100},
		LastActivity: now,
	}
	require.NoError(t, repo.Ensure(context.Background(), "s-1", init))

	doc, err := repo.Read(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), doc.Holdings["AAPL"])
}

func TestRead_NotFound(t *testing.T) {
	repo := repository.New(testsupport.NewFakeGateway())
	_, err := repo.Read(context.Background(), "missing")
	assert.ErrorIs(t, err, gateway.ErrNotFound)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestBeginAnalysis_RejectsInvalidTicker(t *testing.T) {
	repo := repository.New(testsupport.NewFakeGateway())
	_, err := repo.BeginAnalysis(context.Background(), "s-1", "not-a-ticker!", time.Now())
	assert.Error(t, err)
}

func TestBeginAnalysis_RejectsStaleTimestamp(t *testing.T) {
	repo := repository.New(testsupport.NewFakeGateway())
	_, err := repo.BeginAnalysis(context.Background(), "s-1", "AAPL", time.Now().Add(-time.Hour))
	assert.Error(t, err)
}

func TestApplyMarketUpdate_RejectsInvalidTickerInPrices(t *testing.T) {
	repo := repository.New(testsupport.NewFakeGateway())
	err := repo.ApplyMarketUpdate(context.Background(), "s-1", map[string]float64{"bad ticker": 1.0})
	assert.Error(t, err)
}

func TestListSessions_DelegatesToGateway(t *testing.T) {
	fake := testsupport.NewFakeGateway()
	repo := repository.New(fake)
	require.NoError(t, repo.Ensure(context.Background(), "s-1", domain.SessionDocument{SessionID: "s-1"}))
	require.NoError(t, repo.Ensure(context.Background(), "s-2", domain.SessionDocument{SessionID: "s-2"}))

	ids, err := repo.ListSessions(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s-1", "s-2"}, ids)
}
