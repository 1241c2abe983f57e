package render

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"spxreplay/internal/playback"
)

// LogSink writes every frame as a structured log record.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink constructs a frame logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "render_log").Logger()}
}

func (s *LogSink) Render(_ context.Context, frame playback.Frame) error {
	p := frame.Point
	ev := s.logger.Info().
		Uint64("cycle", frame.Cycle).
		Str("progress", progress(frame)).
		Str("day", p.Timestamp.Format(playback.LabelLayout)).
		Str("open", Price(p.Open)).
		Str("high", Price(p.High)).
		Str("low", Price(p.Low)).
		Str("close", Price(p.Close)).
		Int("window", len(frame.Window)).
		Bool("evicted", frame.Evicted)
	if p.Decision != nil {
		ev = ev.Str("decision", string(p.Decision.Signal)).
			Str("score", decimal.NewFromFloat(p.Decision.Value).StringFixed(1))
	}
	ev.Msg("frame")
	return nil
}

// UpdateStatus logs the freshness line.
func (s *LogSink) UpdateStatus(status playback.Status) {
	s.logger.Info().Int("points", status.Points).Msg(status.Text)
}

// Price formats a raw price for display.
func Price(v float64) string {
	return "$" + decimal.NewFromFloat(v).StringFixed(2)
}

func progress(frame playback.Frame) string {
	return strconv.Itoa(frame.Cursor+1) + "/" + strconv.Itoa(frame.Total)
}

var (
	_ playback.Renderer   = (*LogSink)(nil)
	_ playback.StatusSink = (*LogSink)(nil)
)
