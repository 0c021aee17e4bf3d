// Package metrics implements the five metric kernels the Analysis Engine
// fans out over. Each kernel depends only on the snapshot it is given,
// never on the live document, never on package-level state, and sleeps
// a simulated compute delay before returning, exactly as the teacher's
// background tasks model artificial I/O-bound work.
package metrics

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/onexdata/stock-portfolio-analysis/internal/repository"
)

// Kernel is the signature every metric function satisfies.
type Kernel func(ctx context.Context, ticker string, snap repository.Snapshot, rng *rand.Rand) (float64, error)

// DelayRange bounds the uniformly random simulated compute delay every
// kernel sleeps before returning.
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

// DefaultDelay matches the [2s, 5s] envelope.
var DefaultDelay = DelayRange{Min: 2 * time.Second, Max: 5 * time.Second}

// NewRegistry binds the given delay range into a fresh kernel map. The
// server builds one registry at startup from configuration and every
// Analysis Engine reuses it for every run, each kernel still gets its own *rand.Rand
// per invocation, so sharing the registry across runs is safe.
func NewRegistry(delay DelayRange) map[string]Kernel {
	return map[string]Kernel{
		"portfolio_risk":   boundKernel(portfolioRisk, delay),
		"concentration":    boundKernel(concentration, delay),
		"correlation":      boundKernel(correlation, delay),
		"momentum":         boundKernel(momentum, delay),
		"allocation_score": boundKernel(allocationScore, delay),
	}
}

type unboundKernel func(ctx context.Context, ticker string, snap repository.Snapshot, rng *rand.Rand, delay DelayRange) (float64, error)

func boundKernel(k unboundKernel, delay DelayRange) Kernel {
	return func(ctx context.Context, ticker string, snap repository.Snapshot, rng *rand.Rand) (float64, error) {
		return k(ctx, ticker, snap, rng, delay)
	}
}

// SeedFor derives a per-run-per-kernel seed from (sid, ticker, generation,
// metric) so test runs are reproducible without any kernel sharing a
// global rand source, each goroutine gets its own *rand.Rand.
func SeedFor(sessionID, ticker string, generation uint64, metric string) int64 {
	h := fnv.New64a()
	h.Write([]byte(sessionID))
	h.Write([]byte{0})
	h.Write([]byte(ticker))
	h.Write([]byte{0})
	h.Write([]byte(metric))
	var gen [8]byte
	for i := range gen {
		gen[i] = byte(generation >> (8 * i))
	}
	h.Write(gen[:])
	return int64(h.Sum64())
}

// sleep blocks for a uniformly random duration in [d.Min, d.Max], drawn
// from a gonum distuv.Uniform seeded by rng, so the delay itself is part
// of the kernel's deterministic seed, and returns early with ctx.Err()
// if ctx is cancelled first.
func sleep(ctx context.Context, d DelayRange, rng *rand.Rand) error {
	dist := distuv.Uniform{Min: float64(d.Min), Max: float64(d.Max), Src: rng}
	wait := d.Min
	if d.Max > d.Min {
		wait = time.Duration(dist.Rand())
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// clamp restricts v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// unitInterval maps a hash-derived value deterministically into [-1, 1].
func unitInterval(seed int64, salt string) float64 {
	h := fnv.New64a()
	var b [8]byte
	for i := range b {
		b[i] = byte(seed >> (8 * i))
	}
	h.Write(b[:])
	h.Write([]byte(salt))
	v := float64(h.Sum64()%2_000_001) / 1_000_000.0 // [0, 2]
	return v - 1.0
}

// PortfolioRisk derives a bounded real from total_value and the ticker's
// share count: heavier single-ticker weight against the total reads as
// higher simulated risk. Runs the default [2s, 5s] delay envelope; use
// NewRegistry to bind a configured delay instead.
func PortfolioRisk(ctx context.Context, ticker string, snap repository.Snapshot, rng *rand.Rand) (float64, error) {
	return portfolioRisk(ctx, ticker, snap, rng, DefaultDelay)
}

func portfolioRisk(ctx context.Context, ticker string, snap repository.Snapshot, rng *rand.Rand, delay DelayRange) (float64, error) {
	if err := sleep(ctx, delay, rng); err != nil {
		return 0, err
	}
	shares := snap.Holdings[ticker]
	if snap.TotalValue <= 0 {
		return 0, nil
	}
	weight := float64(shares) / (1 + math.Abs(snap.TotalValue)/1000.0)
	risk := clamp(weight/100.0, 0, 1)
	return risk, nil
}

// Concentration is holdings[ticker] * price[ticker] / total_value,
// clamped to [0, 1]. Price isn't tracked per-ticker in the snapshot, so
// it is reconstructed from total_value and the full holdings mix, the
// snapshot carries no per-ticker price, only the aggregate.
func Concentration(ctx context.Context, ticker string, snap repository.Snapshot, rng *rand.Rand) (float64, error) {
	return concentration(ctx, ticker, snap, rng, DefaultDelay)
}

func concentration(ctx context.Context, ticker string, snap repository.Snapshot, rng *rand.Rand, delay DelayRange) (float64, error) {
	if err := sleep(ctx, delay, rng); err != nil {
		return 0, err
	}
	if snap.TotalValue <= 0 {
		return 0, nil
	}
	var totalShares int64
	for _, s := range snap.Holdings {
		totalShares += s
	}
	if totalShares == 0 {
		return 0, nil
	}
	shares := snap.Holdings[ticker]
	shareOfShares := float64(shares) / float64(totalShares)
	return clamp(shareOfShares, 0, 1), nil
}

// Correlation derives a value in [-1, 1] from ticker and the rest of the
// holdings, a deterministic hash of the ticker salted by the holdings
// composition stands in for a real cross-asset correlation computation.
func Correlation(ctx context.Context, ticker string, snap repository.Snapshot, rng *rand.Rand) (float64, error) {
	return correlation(ctx, ticker, snap, rng, DefaultDelay)
}

func correlation(ctx context.Context, ticker string, snap repository.Snapshot, rng *rand.Rand, delay DelayRange) (float64, error) {
	if err := sleep(ctx, delay, rng); err != nil {
		return 0, err
	}
	tickers := make([]string, 0, len(snap.Holdings))
	for t := range snap.Holdings {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	salt := ticker
	for _, t := range tickers {
		salt += "," + t
	}
	return unitInterval(rng.Int63(), salt), nil
}

// Momentum derives a value in [-1, 1] from ticker alone.
func Momentum(ctx context.Context, ticker string, snap repository.Snapshot, rng *rand.Rand) (float64, error) {
	return momentum(ctx, ticker, snap, rng, DefaultDelay)
}

func momentum(ctx context.Context, ticker string, snap repository.Snapshot, rng *rand.Rand, delay DelayRange) (float64, error) {
	if err := sleep(ctx, delay, rng); err != nil {
		return 0, err
	}
	return unitInterval(rng.Int63(), "momentum:"+ticker), nil
}

// AllocationScore indicates over/under-allocation in [-1, 1]: the
// ticker's share of total holdings compared against an even split across
// the distinct tickers held.
func AllocationScore(ctx context.Context, ticker string, snap repository.Snapshot, rng *rand.Rand) (float64, error) {
	return allocationScore(ctx, ticker, snap, rng, DefaultDelay)
}

func allocationScore(ctx context.Context, ticker string, snap repository.Snapshot, rng *rand.Rand, delay DelayRange) (float64, error) {
	if err := sleep(ctx, delay, rng); err != nil {
		return 0, err
	}
	n := len(snap.Holdings)
	if n == 0 {
		return 0, nil
	}
	var totalShares int64
	for _, s := range snap.Holdings {
		totalShares += s
	}
	if totalShares == 0 {
		return 0, nil
	}
	evenShare := 1.0 / float64(n)
	actualShare := float64(snap.Holdings[ticker]) / float64(totalShares)
	return clamp(actualShare-evenShare, -1, 1), nil
}
