package hub

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skywatch/alert-server/internal/model"
	"skywatch/alert-server/internal/observability"
)

func newTestHub() *Hub {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(logger, observability.NewMetricsForTesting(), nil)
}

func stored(id string) model.StoredAlert {
	return model.StoredAlert{
		Alert: model.Alert{Type: model.TypeSOS, Latitude: 1, Longitude: 2},
		ID:    id,
	}
}

func drain(s *Session) []model.StoredAlert {
	var out []model.StoredAlert
	for {
		select {
		case a, ok := <-s.send:
			if !ok {
				return out
			}
			out = append(out, a)
		default:
			return out
		}
	}
}

func TestBroadcastReachesAllSessions(t *testing.T) {
	h := newTestHub()
	a := newSession(nil)
	b := newSession(nil)
	h.register(a)
	h.register(b)

	h.Broadcast(stored("alert-1"))

	for _, s := range []*Session{a, b} {
		got := drain(s)
		require.Len(t, got, 1)
		assert.Equal(t, "alert-1", got[0].ID)
	}
}

func TestUnregisteredSessionReceivesNothing(t *testing.T) {
	h := newTestHub()
	a := newSession(nil)
	b := newSession(nil)
	h.register(a)
	h.register(b)

	h.Unregister(b)
	h.Broadcast(stored("alert-1"))

	assert.Len(t, drain(a), 1)
	assert.Equal(t, 1, h.Count())
}

func TestBroadcastFIFOPerSession(t *testing.T) {
	h := newTestHub()
	s := newSession(nil)
	h.register(s)

	h.Broadcast(stored("first"))
	h.Broadcast(stored("second"))
	h.Broadcast(stored("third"))

	got := drain(s)
	require.Len(t, got, 3)
	assert.Equal(t, "first", got[0].ID)
	assert.Equal(t, "second", got[1].ID)
	assert.Equal(t, "third", got[2].ID)
}

func TestSlowSessionIsEvicted(t *testing.T) {
	h := newTestHub()
	slow := newSession(nil)
	healthy := newSession(nil)
	h.register(slow)
	h.register(healthy)

	// Fill both queues, then keep only the healthy session drained so the
	// next broadcast overflows the slow one.
	for i := 0; i < sendQueueSize; i++ {
		h.Broadcast(stored("flood"))
	}
	require.Len(t, drain(healthy), sendQueueSize)

	h.Broadcast(stored("overflow"))

	assert.Equal(t, 1, h.Count())
	got := drain(healthy)
	require.Len(t, got, 1)
	assert.Equal(t, "overflow", got[0].ID)
	assert.Len(t, drain(slow), sendQueueSize)
}

func TestUnregisterTwice(t *testing.T) {
	h := newTestHub()
	s := newSession(nil)
	h.register(s)

	h.Unregister(s)
	h.Unregister(s)

	assert.Equal(t, 0, h.Count())
}

func TestSendToClosedSessionIsDropped(t *testing.T) {
	s := newSession(nil)
	s.close()

	queued, full := s.trySend(stored("late"))

	assert.False(t, queued)
	assert.False(t, full)
}

func TestBroadcastDuringDisconnect(t *testing.T) {
	h := newTestHub()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			h.Broadcast(stored("storm"))
		}
	}()

	// Ordinary connect/disconnect churn must never race a broadcast into a
	// send on a closed queue.
	for i := 0; i < 500; i++ {
		s := newSession(nil)
		h.register(s)
		h.Unregister(s)
	}
	wg.Wait()

	assert.Equal(t, 0, h.Count())
}

func TestViewerGaugeTracksMembership(t *testing.T) {
	h := newTestHub()
	a := newSession(nil)
	b := newSession(nil)

	h.register(a)
	h.register(b)
	assert.Equal(t, float64(2), testutil.ToFloat64(h.metrics.ConnectedViewers))

	h.Unregister(a)
	h.Unregister(a)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.ConnectedViewers))

	h.Close()
	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.ConnectedViewers))
}

func TestCloseDisconnectsEverything(t *testing.T) {
	h := newTestHub()
	h.register(newSession(nil))
	h.register(newSession(nil))

	h.Close()

	assert.Equal(t, 0, h.Count())

	late := newSession(nil)
	h.register(late)
	assert.Equal(t, 0, h.Count())
}
