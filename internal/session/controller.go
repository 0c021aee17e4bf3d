// Package session implements the Session Controller and the process-wide
// Session Registry that holds non-owning references to them.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/onexdata/stock-portfolio-analysis/internal/analysis"
	"github.com/onexdata/stock-portfolio-analysis/internal/domain"
)

// tickerPattern matches the wire ticker grammar from the inbound message
// contract, kept local to avoid a repository import here; repository
// enforces the identical pattern once more at the persistence boundary.
var tickerPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.]{0,9}$`)

// InboundMessage is the tagged variant every client frame decodes into.
// An unrecognized Action, or an "analyze" with an invalid Ticker, lands
// in the protocol-error arm, HandleMessage never panics on bad input.
type InboundMessage struct {
	Action string `json:"action"`
	Ticker string `json:"ticker"`
}

// OutboundFrame is the tagged variant every frame this Controller emits
// decodes from on the wire: either an analysis_result or an error.
type OutboundFrame struct {
	Type      string            `json:"type"`
	Ticker    string            `json:"ticker,omitempty"`
	Metric    domain.MetricName `json:"metric,omitempty"`
	Value     float64           `json:"value,omitempty"`
	Timestamp string            `json:"timestamp,omitempty"`
	Message   string            `json:"message,omitempty"`
}

// Emitter sends one outbound frame on the session's connection. It is
// the Controller's exclusive single writer; nothing else may call it.
type Emitter func(ctx context.Context, frame OutboundFrame) error

// runHandle is the current-run bookkeeping the Controller keeps. Exactly
// one may be live at a time; cancel followed by <-done is "settled".
type runHandle struct {
	generation uint64
	ticker     string
	cancel     context.CancelFunc
	done       chan struct{}
}

// Controller owns one session's outbound emitter and its at-most-one
// live Analysis Engine run.
type Controller struct {
	sessionID string
	emit      Emitter
	engine    *analysis.Engine
	log       zerolog.Logger

	mu         sync.Mutex
	current    *runHandle
	generation uint64

	idleMu      sync.Mutex
	idleTimer   *time.Timer
	idleTimeout time.Duration
	onIdle      func()
}

// NewController builds a Controller for sessionID. onIdle is invoked from
// the idle timer's own goroutine when no message has arrived for
// idleTimeout; the timer is re-armed only by a later HandleMessage, so it
// fires at most once per idle period. Callers typically wire it to Close
// plus registry removal.
func NewController(sessionID string, emit Emitter, engine *analysis.Engine, idleTimeout time.Duration, onIdle func(), log zerolog.Logger) *Controller {
	c := &Controller{
		sessionID:   sessionID,
		emit:        emit,
		engine:      engine,
		idleTimeout: idleTimeout,
		onIdle:      onIdle,
		log:         log.With().Str("component", "session_controller").Str("session_id", sessionID).Logger(),
	}
	c.resetIdleTimer()
	return c
}

func (c *Controller) resetIdleTimer() {
	c.idleMu.Lock()
	defer c.idleMu.Unlock()
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	if c.idleTimeout <= 0 {
		return
	}
	c.idleTimer = time.AfterFunc(c.idleTimeout, func() {
		if c.onIdle != nil {
			c.onIdle()
		}
	})
}

// HandleMessage decodes and dispatches one inbound frame. A malformed
// frame, an unknown action, or an invalid ticker all surface as an error
// frame without closing the connection.
func (c *Controller) HandleMessage(ctx context.Context, raw []byte) {
	c.resetIdleTimer()

	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.emitError(ctx, fmt.Sprintf("malformed message: %v", err))
		return
	}

	switch msg.Action {
	case "analyze":
		if !tickerPattern.MatchString(msg.Ticker) {
			c.emitError(ctx, fmt.Sprintf("invalid ticker %q", msg.Ticker))
			return
		}
		c.startAnalysis(ctx, msg.Ticker)
	default:
		c.emitError(ctx, fmt.Sprintf("unknown action %q", msg.Action))
	}
}

// startAnalysis implements the on-analyze sequence: cancel and wait for
// settlement of any current run, then start a new one. A re-issued
// analyze for the same ticker still cancels and restarts, for uniformity
// with the switch case (spec's open question, resolved in DESIGN.md).
func (c *Controller) startAnalysis(ctx context.Context, ticker string) {
	c.mu.Lock()
	prev := c.current
	c.mu.Unlock()

	if prev != nil {
		prev.cancel()
		<-prev.done
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.generation++
	gen := c.generation
	handle := &runHandle{generation: gen, ticker: ticker, cancel: cancel, done: make(chan struct{})}
	c.current = handle
	c.mu.Unlock()

	go func() {
		defer close(handle.done)
		outcome, err := c.engine.Run(runCtx, c.sessionID, ticker, gen, func(result domain.ResultRecord) {
			if !c.isCurrentGeneration(gen) {
				return
			}
			frame := OutboundFrame{
				Type:      "analysis_result",
				Ticker:    result.Ticker,
				Metric:    result.Metric,
				Value:     result.Value,
				Timestamp: result.Timestamp.Format(time.RFC3339Nano),
			}
			if err := c.emit(ctx, frame); err != nil {
				c.log.Warn().Err(err).Msg("emit failed")
			}
		}, func(metric string, kerr error) {
			if !c.isCurrentGeneration(gen) {
				return
			}
			c.log.Warn().Str("metric", metric).Err(kerr).Msg("kernel fault")
			c.emitMetricError(ctx, ticker, metric, fmt.Sprintf("metric %s failed: %v", metric, kerr))
		})

		if outcome == analysis.Aborted && c.isCurrentGeneration(gen) {
			c.log.Error().Err(err).Msg("analysis run aborted")
			c.emitError(ctx, fmt.Sprintf("analysis failed: %v", err))
		}

		c.mu.Lock()
		if c.current == handle {
			c.current = nil
		}
		c.mu.Unlock()
	}()
}

// isCurrentGeneration rejects a stale run's late emission from racing a
// newer run's frames on the same connection.
func (c *Controller) isCurrentGeneration(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && c.current.generation == gen
}

func (c *Controller) emitError(ctx context.Context, message string) {
	if err := c.emit(ctx, OutboundFrame{Type: "error", Message: message}); err != nil {
		c.log.Warn().Err(err).Msg("emit failed")
	}
}

// emitMetricError reports a single kernel's fault, tagged with the ticker
// and metric it belongs to, so the client can tell it apart from a
// protocol error or a whole-run abort.
func (c *Controller) emitMetricError(ctx context.Context, ticker, metric, message string) {
	frame := OutboundFrame{Type: "error", Ticker: ticker, Metric: domain.MetricName(metric), Message: message}
	if err := c.emit(ctx, frame); err != nil {
		c.log.Warn().Err(err).Msg("emit failed")
	}
}

// Close cancels the current run (if any), waits for settlement, and
// stops the idle timer. Callers are responsible for removing the
// Controller from the Registry.
func (c *Controller) Close() {
	c.idleMu.Lock()
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	c.idleMu.Unlock()

	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()
	if cur != nil {
		cur.cancel()
		<-cur.done
	}
}

// SessionID returns the id this Controller owns.
func (c *Controller) SessionID() string { return c.sessionID }
