package session_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onexdata/stock-portfolio-analysis/internal/metrics"
	"github.com/onexdata/stock-portfolio-analysis/internal/session"
)

func TestRegistry_AddGetRemove(t *testing.T) {
	reg := session.NewRegistry(nil)
	ctrl, _ := newTestController(t, metrics.DelayRange{Min: time.Millisecond, Max: 2 * time.Millisecond}, 0, nil)
	defer ctrl.Close()

	reg.Add(ctrl)
	got, ok := reg.Get(ctrl.SessionID())
	require.True(t, ok)
	assert.Same(t, ctrl, got)

	reg.Remove(ctrl.SessionID())
	_, ok = reg.Get(ctrl.SessionID())
	assert.False(t, ok)
}

func TestRegistry_Get_UnknownID(t *testing.T) {
	reg := session.NewRegistry(nil)
	_, ok := reg.Get("nonexistent")
	assert.False(t, ok)
}

func TestRegistry_Count(t *testing.T) {
	reg := session.NewRegistry(nil)
	assert.Equal(t, 0, reg.Count())

	ctrl, _ := newTestController(t, metrics.DelayRange{Min: time.Millisecond, Max: 2 * time.Millisecond}, 0, nil)
	defer ctrl.Close()
	reg.Add(ctrl)
	assert.Equal(t, 1, reg.Count())

	reg.Remove(ctrl.SessionID())
	assert.Equal(t, 0, reg.Count())
}

func TestRegistry_Snapshot_IsIndependentCopy(t *testing.T) {
	reg := session.NewRegistry(nil)
	ctrl, _ := newTestController(t, metrics.DelayRange{Min: time.Millisecond, Max: 2 * time.Millisecond}, 0, nil)
	defer ctrl.Close()
	reg.Add(ctrl)

	snap := reg.Snapshot()
	require.Len(t, snap, 1)

	reg.Remove(ctrl.SessionID())
	assert.Len(t, snap, 1, "a prior snapshot must not observe a later removal")
	assert.Equal(t, 0, reg.Count())
}

func TestRegistry_ConcurrentAddRemoveSnapshot(t *testing.T) {
	reg := session.NewRegistry(nil)
	const n = 50

	var wg sync.WaitGroup
	wg.Add(n * 2)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			ctrl, _ := newTestController(t, metrics.DelayRange{Min: time.Millisecond, Max: 2 * time.Millisecond}, 0, nil)
			reg.Add(ctrl)
		}()
		go func() {
			defer wg.Done()
			reg.Remove(fmt.Sprintf("s-%d", i))
			_ = reg.Snapshot()
		}()
	}
	wg.Wait()
}
