// Package analysis implements the Analysis Engine: a single (session,
// ticker) run that fans out five metric kernels over one snapshot and
// fans their results back in, persisting each one before it is emitted.
package analysis

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onexdata/stock-portfolio-analysis/internal/domain"
	"github.com/onexdata/stock-portfolio-analysis/internal/metrics"
	"github.com/onexdata/stock-portfolio-analysis/internal/observability"
	"github.com/onexdata/stock-portfolio-analysis/internal/repository"
)

// Outcome describes how a run ended.
type Outcome int

const (
	// Completed means every kernel persisted and emitted a result.
	Completed Outcome = iota
	// Cancelled means ctx was cancelled out from under the run (a ticker
	// switch or session teardown). Never surfaced as a Go error: it is
	// expected traffic, not a fault.
	Cancelled
	// Aborted means a state error (the document store, not the caller)
	// ended the run early. The accompanying error describes the fault;
	// the session itself remains usable for a subsequent analyze.
	Aborted
)

// EmitFunc sends one result frame on the session's outbound channel. The
// Analysis Engine calls it only after the corresponding AppendResult has
// returned successfully, persist before emit.
type EmitFunc func(result domain.ResultRecord)

// KernelErrorFunc reports that one metric kernel faulted in isolation;
// the run continues for every other kernel. Never called for ctx
// cancellation or for a run-level state error, both of which are
// reported through Run's own return values instead.
type KernelErrorFunc func(metric string, err error)

// Engine runs one (session, ticker) analysis to completion, cancellation,
// or abort, fanning out over a fixed kernel registry.
type Engine struct {
	repo     *repository.Repository
	kernels  map[string]metrics.Kernel
	sleepNow func() time.Time
	metrics  *observability.Metrics
}

// New builds an Engine backed by repo and the given kernel registry. Pass
// metrics.NewRegistry(delay) for the kernel set so the configured delay
// envelope is honored. m may be nil to disable metrics recording.
func New(repo *repository.Repository, kernels map[string]metrics.Kernel, m *observability.Metrics) *Engine {
	return &Engine{repo: repo, kernels: kernels, sleepNow: time.Now, metrics: m}
}

// Run executes one analysis for sid/ticker under ctx. generation
// identifies this run for seed derivation only. Callers are responsible
// for cancelling ctx on switch/teardown and for discarding emissions from
// a superseded generation; Run itself has no notion of "current".
//
// A kernel fault (anything short of ctx cancellation returned by the
// kernel function itself, or a panic inside one) is reported once via
// onKernelError and does not affect its siblings. A state error from the
// document store aborts the whole run: Run returns Aborted with the
// underlying error and no further kernel is persisted or emitted, but the
// session itself is left usable. Plain cancellation returns Cancelled
// with a nil error and is not a fault at all.
func (e *Engine) Run(ctx context.Context, sid, ticker string, generation uint64, emit EmitFunc, onKernelError KernelErrorFunc) (Outcome, error) {
	snap, err := e.repo.BeginAnalysis(ctx, sid, ticker, e.sleepNow().UTC())
	if err != nil {
		if ctx.Err() != nil {
			return Cancelled, nil
		}
		return Aborted, fmt.Errorf("begin analysis: %w", err)
	}

	if e.metrics != nil {
		e.metrics.RunsStarted.Inc()
	}

	var stateErrMu sync.Mutex
	var stateErr error

	g, gctx := errgroup.WithContext(ctx)
	for name, kernel := range e.kernels {
		name, kernel := name, kernel
		g.Go(func() (err error) {
			started := e.sleepNow()
			defer func() {
				if r := recover(); r != nil {
					err = nil
					if onKernelError != nil {
						onKernelError(name, fmt.Errorf("kernel panic: %v", r))
					}
				}
				if e.metrics != nil {
					e.metrics.KernelDuration.WithLabelValues(name).Observe(e.sleepNow().Sub(started).Seconds())
				}
			}()

			seed := metrics.SeedFor(sid, ticker, generation, name)
			rng := rand.New(rand.NewSource(seed))

			value, kerr := kernel(gctx, ticker, *snap, rng)
			if kerr != nil {
				if gctx.Err() != nil {
					// ctx is already done, either this run's own ctx was
					// cancelled or a sibling's state error tore it down.
					// Either way, propagate so the group settles promptly.
					return kerr
				}
				// A kernel-level fault with ctx still live: isolated to
				// this metric, every other kernel keeps running.
				if onKernelError != nil {
					onKernelError(name, kerr)
				}
				return nil
			}

			record := domain.ResultRecord{
				Ticker:    ticker,
				Metric:    domain.MetricName(name),
				Value:     value,
				Timestamp: e.sleepNow().UTC(),
			}

			if gctx.Err() != nil {
				return gctx.Err()
			}
			if err := e.repo.AppendResult(ctx, sid, record, record.Timestamp); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				stateErrMu.Lock()
				if stateErr == nil {
					stateErr = fmt.Errorf("append result for %s: %w", name, err)
				}
				stateErrMu.Unlock()
				return err
			}
			if gctx.Err() != nil {
				// A sibling's state error or a cancellation landed while
				// this result was being persisted: emit nothing further.
				return gctx.Err()
			}
			emit(record)
			return nil
		})
	}

	_ = g.Wait()

	if ctx.Err() != nil {
		if e.metrics != nil {
			e.metrics.RunsCancelled.Inc()
		}
		return Cancelled, nil
	}

	stateErrMu.Lock()
	se := stateErr
	stateErrMu.Unlock()
	if se != nil {
		if e.metrics != nil {
			e.metrics.RunsAborted.Inc()
		}
		return Aborted, se
	}

	if e.metrics != nil {
		e.metrics.RunsCompleted.Inc()
	}
	return Completed, nil
}
