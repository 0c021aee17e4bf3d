// Package market implements the Market Updater: a single background
// loop that periodically recomputes total_value for every live session
// from a simulated price walk. It is independent of Session Controllers
// and never touches current_analysis or analysis_results, grounded on
// the teacher's queue.Scheduler ticker-in-goroutine-with-stop-channel
// pattern.
package market

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/onexdata/stock-portfolio-analysis/internal/repository"
)

const unknownTickerBasePrice = 100.0

// Updater periodically walks every live session's holdings, advances a
// mock price for each ticker, and applies the resulting total_value.
type Updater struct {
	repo     *repository.Repository
	interval time.Duration
	base     map[string]float64
	log      zerolog.Logger

	mu     sync.Mutex
	prices map[string]float64
	rng    *rand.Rand

	stop    chan struct{}
	stopped sync.WaitGroup
}

// NewUpdater builds an Updater. base supplies initial prices per ticker;
// any ticker not present there defaults to unknownTickerBasePrice the
// first time it's observed in a session's holdings.
func NewUpdater(repo *repository.Repository, interval time.Duration, base map[string]float64, log zerolog.Logger) *Updater {
	prices := make(map[string]float64, len(base))
	for t, p := range base {
		prices[t] = p
	}
	return &Updater{
		repo:     repo,
		interval: interval,
		base:     base,
		prices:   prices,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		log:      log.With().Str("component", "market_updater").Logger(),
		stop:     make(chan struct{}),
	}
}

// Start launches the ticker-driven loop in its own goroutine.
func (u *Updater) Start(ctx context.Context) {
	u.stopped.Add(1)
	go func() {
		defer u.stopped.Done()
		ticker := time.NewTicker(u.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-u.stop:
				return
			case <-ticker.C:
				u.tick(ctx)
			}
		}
	}()
}

// Stop signals the loop to exit and waits for it to do so.
func (u *Updater) Stop() {
	close(u.stop)
	u.stopped.Wait()
}

func (u *Updater) tick(ctx context.Context) {
	sessionIDs, err := u.repo.ListSessions(ctx)
	if err != nil {
		u.log.Error().Err(err).Msg("list sessions failed")
		return
	}

	for _, sid := range sessionIDs {
		doc, err := u.repo.Read(ctx, sid)
		if err != nil {
			u.log.Warn().Err(err).Str("session_id", sid).Msg("read failed, skipping")
			continue
		}

		prices := make(map[string]float64, len(doc.Holdings))
		for ticker := range doc.Holdings {
			prices[ticker] = u.nextPrice(ticker)
		}

		if err := u.repo.ApplyMarketUpdate(ctx, sid, prices); err != nil {
			u.log.Warn().Err(err).Str("session_id", sid).Msg("apply market update failed, skipping")
			continue
		}
	}
}

// nextPrice draws the next price for ticker from its previous price via
// a uniform ±2% random walk, seeded from the updater's process-wide RNG.
func (u *Updater) nextPrice(ticker string) float64 {
	u.mu.Lock()
	defer u.mu.Unlock()

	prev, ok := u.prices[ticker]
	if !ok {
		prev = unknownTickerBasePrice
	}

	dist := distuv.Uniform{Min: -0.02, Max: 0.02, Src: u.rng}
	next := prev * (1 + dist.Rand())
	if next < 0 {
		next = 0
	}
	u.prices[ticker] = next
	return next
}
