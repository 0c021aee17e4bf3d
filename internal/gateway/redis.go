package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/onexdata/stock-portfolio-analysis/internal/domain"
)

var _ Gateway = (*RedisGateway)(nil)

// RedisGateway is the Gateway implementation backed by a document store
// reached over the go-redis client. It is the only package in this
// service that imports go-redis directly, every other package depends
// on the Gateway interface, never on a store-specific client type.
type RedisGateway struct {
	rdb *redis.Client
	ttl time.Duration

	ensure            *redis.Script
	read              *redis.Script
	beginAnalysis     *redis.Script
	appendResult      *redis.Script
	applyMarketUpdate *redis.Script
}

// NewRedisGateway builds a gateway around rdb. Its scripts are compiled
// here but not yet loaded into the store: call Bootstrap once at startup
// before serving traffic. The first
// EVALSHA of an unregistered script would otherwise pay for a NOSCRIPT
// round trip on the hot path.
func NewRedisGateway(rdb *redis.Client, ttl time.Duration) *RedisGateway {
	return &RedisGateway{
		rdb:               rdb,
		ttl:               ttl,
		ensure:            redis.NewScript(ensureScript),
		read:              redis.NewScript(readScript),
		beginAnalysis:     redis.NewScript(beginAnalysisScript),
		appendResult:      redis.NewScript(appendResultScript),
		applyMarketUpdate: redis.NewScript(applyMarketUpdateScript),
	}
}

// Bootstrap loads every script into the store once, up front, so steady
// state traffic always hits EVALSHA and never pays a load round trip.
func (g *RedisGateway) Bootstrap(ctx context.Context) error {
	for _, s := range []*redis.Script{g.ensure, g.read, g.beginAnalysis, g.appendResult, g.applyMarketUpdate} {
		if err := s.Load(ctx, g.rdb).Err(); err != nil {
			return fmt.Errorf("gateway: register script: %w", err)
		}
	}
	return nil
}

func hashKey(sessionID string) string { return "portfolio:" + sessionID }
func listKey(sessionID string) string { return "portfolio:" + sessionID + ":results" }

// runScript invokes a registered script by its SHA1 handle. The store
// forgets script bodies on a restart or FLUSHALL independently of key
// expiry; if that happens mid-run we see NOSCRIPT, re-register once, and
// retry exactly once rather than propagating a spurious failure.
func runScript(ctx context.Context, rdb redis.Cmdable, script *redis.Script, keys []string, args ...interface{}) (interface{}, error) {
	res, err := script.EvalSha(ctx, rdb, keys, args...).Result()
	if err != nil && isNoScript(err) {
		if _, loadErr := script.Load(ctx, rdb).Result(); loadErr != nil {
			return nil, fmt.Errorf("gateway: re-register script after NOSCRIPT: %w", loadErr)
		}
		res, err = script.EvalSha(ctx, rdb, keys, args...).Result()
	}
	return res, err
}

func isNoScript(err error) bool {
	return strings.HasPrefix(err.Error(), "NOSCRIPT")
}

func (g *RedisGateway) Ensure(ctx context.Context, sessionID string, initial domain.SessionDocument) error {
	holdingsJSON, err := json.Marshal(initial.Holdings)
	if err != nil {
		return fmt.Errorf("gateway: marshal holdings: %w", err)
	}

	_, err = runScript(ctx, g.rdb, g.ensure,
		[]string{hashKey(sessionID), listKey(sessionID)},
		sessionID,
		string(holdingsJSON),
		formatFloat(initial.TotalValue),
		initial.LastActivity.Format(time.RFC3339Nano),
		int(g.ttl.Seconds()),
	)
	return err
}

func (g *RedisGateway) Read(ctx context.Context, sessionID string) (*domain.SessionDocument, error) {
	raw, err := runScript(ctx, g.rdb, g.read,
		[]string{hashKey(sessionID), listKey(sessionID)},
		int(g.ttl.Seconds()),
	)
	if err != nil {
		return nil, err
	}
	if falseResult(raw) {
		return nil, ErrNotFound
	}
	return decodeDocument(sessionID, raw)
}

func (g *RedisGateway) BeginAnalysis(ctx context.Context, sessionID, ticker string, startedAt time.Time) (*domain.SessionDocument, error) {
	raw, err := runScript(ctx, g.rdb, g.beginAnalysis,
		[]string{hashKey(sessionID), listKey(sessionID)},
		ticker,
		startedAt.Format(time.RFC3339Nano),
		startedAt.Format(time.RFC3339Nano),
		int(g.ttl.Seconds()),
	)
	if err != nil {
		return nil, err
	}
	if falseResult(raw) {
		return nil, ErrNotFound
	}
	return decodeDocument(sessionID, raw)
}

func (g *RedisGateway) AppendResult(ctx context.Context, sessionID string, result domain.ResultRecord, lastActivity time.Time) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("gateway: marshal result: %w", err)
	}

	raw, err := runScript(ctx, g.rdb, g.appendResult,
		[]string{hashKey(sessionID), listKey(sessionID)},
		string(resultJSON),
		lastActivity.Format(time.RFC3339Nano),
		int(g.ttl.Seconds()),
	)
	if err != nil {
		return err
	}
	if falseResult(raw) {
		return ErrNotFound
	}
	return nil
}

func (g *RedisGateway) ApplyMarketUpdate(ctx context.Context, sessionID string, prices map[string]float64) error {
	pricesJSON, err := json.Marshal(prices)
	if err != nil {
		return fmt.Errorf("gateway: marshal prices: %w", err)
	}

	raw, err := runScript(ctx, g.rdb, g.applyMarketUpdate,
		[]string{hashKey(sessionID)},
		string(pricesJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
		int(g.ttl.Seconds()),
	)
	if err != nil {
		return err
	}
	if falseResult(raw) {
		return ErrNotFound
	}
	return nil
}

// ListSessions enumerates live session keys with SCAN rather than KEYS.
// A single KEYS portfolio:* would block the store for the duration of a
// full keyspace walk; SCAN yields the same result across many round
// trips with no such pause. This operation has no atomicity requirement
// of its own, so it is the one Gateway method not backed by a script.
func (g *RedisGateway) ListSessions(ctx context.Context) ([]string, error) {
	var sessionIDs []string
	var cursor uint64
	for {
		keys, next, err := g.rdb.Scan(ctx, cursor, "portfolio:*", 200).Result()
		if err != nil {
			return nil, fmt.Errorf("gateway: scan sessions: %w", err)
		}
		for _, k := range keys {
			if strings.HasSuffix(k, ":results") {
				continue
			}
			sessionIDs = append(sessionIDs, strings.TrimPrefix(k, "portfolio:"))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return sessionIDs, nil
}

func falseResult(raw interface{}) bool {
	b, ok := raw.(bool)
	return ok && !b
}

// decodeDocument turns the {doc, results} pair a script returns (a flat
// HGETALL-style slice and a list of JSON result blobs) into a
// domain.SessionDocument.
func decodeDocument(sessionID string, raw interface{}) (*domain.SessionDocument, error) {
	pair, ok := raw.([]interface{})
	if !ok || len(pair) != 2 {
		return nil, fmt.Errorf("gateway: unexpected script reply shape")
	}

	fields, ok := pair[0].([]interface{})
	if !ok {
		return nil, fmt.Errorf("gateway: unexpected document fields shape")
	}

	flat := make(map[string]string, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		key, _ := fields[i].(string)
		val, _ := fields[i+1].(string)
		flat[key] = val
	}

	doc := &domain.SessionDocument{SessionID: sessionID}

	if h, ok := flat["holdings"]; ok && h != "" {
		if err := json.Unmarshal([]byte(h), &doc.Holdings); err != nil {
			return nil, fmt.Errorf("gateway: decode holdings: %w", err)
		}
	}
	if doc.Holdings == nil {
		doc.Holdings = map[string]int64{}
	}

	if v, ok := flat["total_value"]; ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("gateway: decode total_value: %w", err)
		}
		doc.TotalValue = f
	}

	if t, ok := flat["last_activity"]; ok && t != "" {
		ts, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return nil, fmt.Errorf("gateway: decode last_activity: %w", err)
		}
		doc.LastActivity = ts
	}

	ticker, hasTicker := flat["current_analysis_ticker"]
	started, hasStarted := flat["current_analysis_started_at"]
	if hasTicker && hasStarted && ticker != "" {
		ts, err := time.Parse(time.RFC3339Nano, started)
		if err != nil {
			return nil, fmt.Errorf("gateway: decode current_analysis_started_at: %w", err)
		}
		doc.CurrentAnalysis = &domain.CurrentAnalysis{Ticker: ticker, StartedAt: ts}
	}

	results, ok := pair[1].([]interface{})
	if !ok {
		return doc, nil
	}
	doc.AnalysisResults = make([]domain.ResultRecord, 0, len(results))
	for _, r := range results {
		blob, _ := r.(string)
		var rec domain.ResultRecord
		if err := json.Unmarshal([]byte(blob), &rec); err != nil {
			return nil, fmt.Errorf("gateway: decode result record: %w", err)
		}
		doc.AnalysisResults = append(doc.AnalysisResults, rec)
	}

	return doc, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
