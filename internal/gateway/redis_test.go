package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onexdata/stock-portfolio-analysis/internal/domain"
)

func TestDecodeDocument_FullRoundTrip(t *testing.T) {
	holdingsJSON := `{"AAPL":100,"GOOGL":50}`
	resultJSON := `{"ticker":"AAPL","metric":"momentum","value":0.5,"timestamp":"2024-01-01T00:00:00Z"}`

	raw := []interface{}{
		[]interface{}{
			"holdings", holdingsJSON,
			"total_value", "125000.5",
			"last_activity", "2024-01-01T00:00:00Z",
			"current_analysis_ticker", "AAPL",
			"current_analysis_started_at", "2024-01-01T00:00:00Z",
		},
		[]interface{}{resultJSON},
	}

	doc, err := decodeDocument("s-1-aaaa", raw)
	require.NoError(t, err)
	assert.Equal(t, "s-1-aaaa", doc.SessionID)
	assert.Equal(t, int64(100), doc.Holdings["AAPL"])
	assert.Equal(t, int64(50), doc.Holdings["GOOGL"])
	assert.InDelta(t, 125000.5, doc.TotalValue, 0.001)
	require.NotNil(t, doc.CurrentAnalysis)
	assert.Equal(t, "AAPL", doc.CurrentAnalysis.Ticker)
	require.Len(t, doc.AnalysisResults, 1)
	assert.Equal(t, domain.MetricName("momentum"), doc.AnalysisResults[0].Metric)
}

func TestDecodeDocument_NoCurrentAnalysis(t *testing.T) {
	raw := []interface{}{
		[]interface{}{
			"holdings", "{}",
			"total_value", "0",
			"last_activity", "2024-01-01T00:00:00Z",
		},
		[]interface{}{},
	}

	doc, err := decodeDocument("s-2-bbbb", raw)
	require.NoError(t, err)
	assert.Nil(t, doc.CurrentAnalysis)
	assert.Empty(t, doc.Holdings)
	assert.Empty(t, doc.AnalysisResults)
}

func TestFalseResult(t *testing.T) {
	assert.True(t, falseResult(false))
	assert.False(t, falseResult(true))
	assert.False(t, falseResult("anything else"))
	assert.False(t, falseResult(nil))
}

func TestIsNoScript(t *testing.T) {
	assert.True(t, isNoScript(fmtErr("NOSCRIPT No matching script")))
	assert.False(t, isNoScript(fmtErr("some other error")))
}

func fmtErr(s string) error { return &stringError{s} }

type stringError struct{ s string }

func (e *stringError) Error() string { return e.s }

func TestHashAndListKeys(t *testing.T) {
	assert.Equal(t, "portfolio:s-1-aaaa", hashKey("s-1-aaaa"))
	assert.Equal(t, "portfolio:s-1-aaaa:results", listKey("s-1-aaaa"))
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "125000", formatFloat(125000))
	assert.Equal(t, "125000.5", formatFloat(125000.5))
}

func TestNewRedisGateway_ScriptsBound(t *testing.T) {
	g := NewRedisGateway(nil, 24*time.Hour)
	assert.NotNil(t, g.ensure)
	assert.NotNil(t, g.read)
	assert.NotNil(t, g.beginAnalysis)
	assert.NotNil(t, g.appendResult)
	assert.NotNil(t, g.applyMarketUpdate)
}
