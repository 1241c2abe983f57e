package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"spxreplay/internal/playback"
)

func TestObserverCounters(t *testing.T) {
	m := NewMetrics(nil)

	m.FetchSucceeded(120)
	m.Revealed(1, false)
	m.Revealed(50, true)
	m.FetchFailed()
	m.FetchFailed()
	m.BatchRejected()

	if got := testutil.ToFloat64(m.RevealsTotal); got != 2 {
		t.Fatalf("reveals = %v", got)
	}
	if got := testutil.ToFloat64(m.EvictionsTotal); got != 1 {
		t.Fatalf("evictions = %v", got)
	}
	if got := testutil.ToFloat64(m.FetchesTotal.WithLabelValues("error")); got != 2 {
		t.Fatalf("fetch errors = %v", got)
	}
	if got := testutil.ToFloat64(m.FetchesTotal.WithLabelValues("rejected")); got != 1 {
		t.Fatalf("rejected = %v", got)
	}
	if got := testutil.ToFloat64(m.PointsLoaded); got != 120 {
		t.Fatalf("points = %v", got)
	}
	if got := testutil.ToFloat64(m.WindowLength); got != 50 {
		t.Fatalf("window length = %v", got)
	}
}

func TestStateGaugeIsOneHot(t *testing.T) {
	m := NewMetrics(nil)
	m.StateChanged(playback.StateFetchFailed)

	for _, s := range allStates {
		want := 0.0
		if s == playback.StateFetchFailed {
			want = 1
		}
		if got := testutil.ToFloat64(m.State.WithLabelValues(s.String())); got != want {
			t.Fatalf("state %s = %v, want %v", s, got, want)
		}
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics(nil)
	m.Revealed(3, false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "spxreplay_reveals_total 1") {
		t.Fatalf("metrics output missing reveals counter:\n%s", body)
	}
}
