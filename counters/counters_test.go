package counters

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/c12stack/c12/channel"
)

func TestRoundTripOrdering(t *testing.T) {
	c := &Counters{}

	min, avg, max := c.RoundTrip()
	require.Zero(t, min)
	require.Zero(t, avg)
	require.Zero(t, max)

	samples := []time.Duration{
		40 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		90 * time.Millisecond,
	}
	for _, s := range samples {
		c.SampleRoundTrip(s)
	}

	min, avg, max = c.RoundTrip()
	require.Equal(t, 10*time.Millisecond, min)
	require.Equal(t, 90*time.Millisecond, max)
	require.LessOrEqual(t, min, avg)
	require.LessOrEqual(t, avg, max)
}

func TestSummaryClearsActivityFlag(t *testing.T) {
	c := &Counters{}
	require.False(t, c.HasActivitySinceLastDump())

	c.IncAppSucc()
	require.True(t, c.HasActivitySinceLastDump())

	s := c.Summary()
	require.Contains(t, s, "app[succ=1 retry=0 fail=0]")
	require.False(t, c.HasActivitySinceLastDump(), "Summary must clear the dump flag")
}

func TestReset(t *testing.T) {
	c := &Counters{}
	c.IncAppSucc()
	c.IncLinkRetry()
	c.SampleRoundTrip(time.Millisecond)

	c.Reset()
	require.Zero(t, c.AppSucc)
	require.Zero(t, c.LinkRetry)
	min, avg, max := c.RoundTrip()
	require.Zero(t, min+avg+max)
}

func TestPrometheusCollector(t *testing.T) {
	c := &Counters{}
	c.IncAppSucc()
	c.IncLinkSucc()
	c.IncLinkSucc()
	c.SampleRoundTrip(20 * time.Millisecond)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewPrometheusCollector(c)))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 7)

	byName := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() != nil {
				byName[mf.GetName()] = m.GetCounter().GetValue()
			}
		}
	}
	require.Equal(t, 1.0, byName["c12_app_services_success_total"])
	require.Equal(t, 2.0, byName["c12_link_exchanges_success_total"])
}

// recordingSink collects delivered monitor events.
type recordingSink struct {
	mu     sync.Mutex
	events []channel.EventKind
}

func (r *recordingSink) OnMessage(kind channel.EventKind, _ string) {
	r.mu.Lock()
	r.events = append(r.events, kind)
	r.mu.Unlock()
}

func (r *recordingSink) IsListening() bool { return true }

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestMonitorHubDeliversOnFlush(t *testing.T) {
	hub := NewMonitorHub()
	sink := &recordingSink{}

	require.False(t, hub.IsListening())
	hub.OnMessage(channel.EventChannelConnect, "dropped, nobody listening")

	hub.Attach(sink)
	require.True(t, hub.IsListening())

	hub.OnMessage(channel.EventChannelConnect, "")
	hub.OnMessage(channel.EventLinkLayerInformation, "")
	hub.Flush()
	require.Equal(t, 2, sink.count())

	hub.Detach(sink)
	require.False(t, hub.IsListening())
}

func TestMonitorHubDetachJoinsWorker(t *testing.T) {
	hub := NewMonitorHub()
	sink := &recordingSink{}

	// Attach/detach repeatedly: each cycle must start and join the private
	// flush worker without deadlocking.
	for i := 0; i < 3; i++ {
		hub.Attach(sink)
		hub.OnMessage(channel.EventChannelByteTx, "")
		hub.Detach(sink)
	}
	require.GreaterOrEqual(t, sink.count(), 3, "stop path must flush pending events")
}
