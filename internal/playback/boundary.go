package playback

import (
	"context"
	"time"

	"spxreplay/internal/model"
)

// Series names emitted on the render boundary.
const (
	SeriesOpen     = "Open"
	SeriesHigh     = "High"
	SeriesLow      = "Low"
	SeriesClose    = "Close"
	SeriesDecision = "Decision"
)

// LabelLayout formats the shared label axis (en-US short date).
const LabelLayout = "Jan 2, 2006"

// Source performs one request for a full record batch.
type Source interface {
	Fetch(ctx context.Context) (model.Batch, error)
}

// Renderer receives one frame per reveal. A returned error is fatal.
type Renderer interface {
	Render(ctx context.Context, frame Frame) error
}

// StatusSink receives the "last updated" status after every successful fetch.
type StatusSink interface {
	UpdateStatus(status Status)
}

// Observer receives engine events for metrics.
type Observer interface {
	StateChanged(state State)
	Revealed(windowLen int, evicted bool)
	FetchSucceeded(points int)
	FetchFailed()
	BatchRejected()
}

// Series is one named value column aligned with Frame.Labels.
type Series struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Frame is the snapshot emitted after a reveal.
type Frame struct {
	Cycle   uint64            `json:"cycle"`
	Cursor  int               `json:"cursor"`
	Total   int               `json:"total"`
	Point   model.DataPoint   `json:"point"`
	Evicted bool              `json:"evicted"`
	Window  []model.DataPoint `json:"window"`
	Labels  []string          `json:"labels"`
	Series  []Series          `json:"series"`
}

// Status is the human readable freshness indicator.
type Status struct {
	LastUpdated time.Time `json:"last_updated"`
	Points      int       `json:"points"`
	Text        string    `json:"text"`
}

// NewStatus formats the status line for t.
func NewStatus(t time.Time, points int) Status {
	return Status{
		LastUpdated: t,
		Points:      points,
		Text:        "Last updated: " + t.Format("1/2/2006, 3:04:05 PM"),
	}
}

// BuildFrame assembles labels and series for the given window.
func BuildFrame(window []model.DataPoint, withDecision bool) ([]string, []Series) {
	labels := make([]string, len(window))
	open := make([]float64, len(window))
	high := make([]float64, len(window))
	low := make([]float64, len(window))
	closes := make([]float64, len(window))
	for i, p := range window {
		labels[i] = p.Timestamp.Format(LabelLayout)
		open[i] = p.Open
		high[i] = p.High
		low[i] = p.Low
		closes[i] = p.Close
	}

	series := []Series{
		{Name: SeriesOpen, Values: open},
		{Name: SeriesHigh, Values: high},
		{Name: SeriesLow, Values: low},
		{Name: SeriesClose, Values: closes},
	}
	if withDecision {
		decision := make([]float64, len(window))
		for i, p := range window {
			if p.Decision != nil {
				decision[i] = p.Decision.Value
			}
		}
		series = append(series, Series{Name: SeriesDecision, Values: decision})
	}
	return labels, series
}

type nopObserver struct{}

func (nopObserver) StateChanged(State) {}
func (nopObserver) Revealed(int, bool) {}
func (nopObserver) FetchSucceeded(int) {}
func (nopObserver) FetchFailed() {}
func (nopObserver) BatchRejected() {}

type nopStatus struct{}

func (nopStatus) UpdateStatus(Status) {}
