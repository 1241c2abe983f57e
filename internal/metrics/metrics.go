package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"spxreplay/internal/playback"
)

// Metrics holds the Prometheus collectors of the playback engine.
type Metrics struct {
	registry *prometheus.Registry

	RevealsTotal    prometheus.Counter
	EvictionsTotal  prometheus.Counter
	FetchesTotal    *prometheus.CounterVec // labels: result=ok|error|rejected
	PointsLoaded    prometheus.Gauge
	WindowLength    prometheus.Gauge
	State           *prometheus.GaugeVec // labels: state
	LastFetchUnixTS prometheus.Gauge
}

// NewMetrics builds the collectors and registers them on registry. A nil
// registry gets a fresh one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: registry,
		RevealsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spxreplay_reveals_total",
			Help: "Points revealed into the display window",
		}),
		EvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spxreplay_window_evictions_total",
			Help: "Points evicted from the head of the display window",
		}),
		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spxreplay_fetches_total",
			Help: "Batch fetches by result",
		}, []string{"result"}),
		PointsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spxreplay_sequence_points",
			Help: "Points in the currently loaded sequence",
		}),
		WindowLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spxreplay_window_length",
			Help: "Current display window length",
		}),
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spxreplay_engine_state",
			Help: "1 for the current engine state, 0 otherwise",
		}, []string{"state"}),
		LastFetchUnixTS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spxreplay_last_fetch_timestamp_seconds",
			Help: "Unix time of the last successful fetch",
		}),
	}

	registry.MustRegister(
		m.RevealsTotal,
		m.EvictionsTotal,
		m.FetchesTotal,
		m.PointsLoaded,
		m.WindowLength,
		m.State,
		m.LastFetchUnixTS,
	)
	for _, r := range []string{"ok", "error", "rejected"} {
		m.FetchesTotal.WithLabelValues(r)
	}
	for _, s := range allStates {
		m.State.WithLabelValues(s.String()).Set(0)
	}
	m.State.WithLabelValues(playback.StateIdle.String()).Set(1)
	return m
}

var allStates = []playback.State{
	playback.StateIdle,
	playback.StateReplaying,
	playback.StateAwaitingFetch,
	playback.StateFetchFailed,
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) StateChanged(state playback.State) {
	for _, s := range allStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.State.WithLabelValues(s.String()).Set(v)
	}
}

func (m *Metrics) Revealed(windowLen int, evicted bool) {
	m.RevealsTotal.Inc()
	m.WindowLength.Set(float64(windowLen))
	if evicted {
		m.EvictionsTotal.Inc()
	}
}

func (m *Metrics) FetchSucceeded(points int) {
	m.FetchesTotal.WithLabelValues("ok").Inc()
	m.PointsLoaded.Set(float64(points))
	m.WindowLength.Set(0)
	m.LastFetchUnixTS.SetToCurrentTime()
}

func (m *Metrics) FetchFailed() {
	m.FetchesTotal.WithLabelValues("error").Inc()
}

func (m *Metrics) BatchRejected() {
	m.FetchesTotal.WithLabelValues("rejected").Inc()
}

var _ playback.Observer = (*Metrics)(nil)
