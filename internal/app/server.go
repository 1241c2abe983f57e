package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"spxreplay/internal/metrics"
	"spxreplay/internal/playback"
)

type inspector interface {
	Inspect(ctx context.Context) (playback.Snapshot, error)
}

// statusView is the JSON body of /status.
type statusView struct {
	State       string     `json:"state"`
	Cycle       uint64     `json:"cycle"`
	Cursor      int        `json:"cursor"`
	Length      int        `json:"length"`
	WindowLen   int        `json:"window_len"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
	StatusText  string     `json:"status_text,omitempty"`
	Failures    int        `json:"failures"`
	LastError   string     `json:"last_error,omitempty"`
}

func newStatusView(s playback.Snapshot) statusView {
	v := statusView{
		State:     s.State.String(),
		Cycle:     s.Cycle,
		Cursor:    s.Cursor,
		Length:    s.Length,
		WindowLen: len(s.Window),
		Failures:  s.Failures,
	}
	if !s.LastUpdated.IsZero() {
		t := s.LastUpdated
		v.LastUpdated = &t
		v.StatusText = playback.NewStatus(t, s.Length).Text
	}
	if s.LastError != nil {
		v.LastError = s.LastError.Error()
	}
	return v
}

func newMux(engine inspector, ws http.Handler, m *metrics.Metrics, logger zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", ws)
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		snap, err := engine.Inspect(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("status snapshot unavailable")
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(newStatusView(snap))
	})
	return mux
}

func newServer(addr string, engine inspector, ws http.Handler, m *metrics.Metrics, logger zerolog.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           newMux(engine, ws, m, logger.With().Str("component", "http").Logger()),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
