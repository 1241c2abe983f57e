package render

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"spxreplay/internal/playback"
)

// PNGOptions configure the chart file sink.
type PNGOptions struct {
	Path   string
	Width  int
	Height int
	Title  string
}

// PNGSink redraws a chart file of the display window on every frame.
type PNGSink struct {
	opts   PNGOptions
	logger zerolog.Logger
}

// NewPNGSink constructs a chart file sink.
func NewPNGSink(opts PNGOptions, logger zerolog.Logger) *PNGSink {
	if opts.Path == "" {
		opts.Path = "spxreplay.png"
	}
	return &PNGSink{
		opts:   opts,
		logger: logger.With().Str("component", "render_png").Str("path", opts.Path).Logger(),
	}
}

func (s *PNGSink) Render(_ context.Context, frame playback.Frame) error {
	withDecision := false
	for _, series := range frame.Series {
		if series.Name == playback.SeriesDecision {
			withDecision = true
		}
	}

	err := WritePNGFile(s.opts.Path, frame.Window, withDecision, ChartOptions{
		Title:  s.opts.Title,
		Width:  s.opts.Width,
		Height: s.opts.Height,
	})
	if errors.Is(err, ErrTooFewPoints) {
		s.logger.Debug().Int("window", len(frame.Window)).Msg("window too short to chart")
		return nil
	}
	return err
}

var _ playback.Renderer = (*PNGSink)(nil)
