package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"spxreplay/internal/config"
	"spxreplay/internal/metrics"
	"spxreplay/internal/model"
	"spxreplay/internal/playback"
	"spxreplay/internal/storage"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func bar(day int, close float64, signal string) storage.Bar {
	b := storage.Bar{
		Symbol: "^GSPC",
		Day:    time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC),
		Open:   decimal.NewFromFloat(close - 1),
		High:   decimal.NewFromFloat(close + 2),
		Low:    decimal.NewFromFloat(close - 2),
		Close:  decimal.NewFromFloat(close),
		Volume: decimal.NewFromInt(1000),
	}
	if signal != "" {
		b.Signal = &signal
		score := decimal.NewFromFloat(55.25)
		b.Score = &score
	}
	return b
}

func TestDownsampleBarsKeepsEnds(t *testing.T) {
	bars := make([]storage.Bar, 10)
	for i := range bars {
		bars[i] = bar(i+1, float64(i), "")
	}
	got := downsampleBars(bars, 4)
	if len(got) != 4 {
		t.Fatalf("expected 4 bars, got %d", len(got))
	}
	if !got[0].Day.Equal(bars[0].Day) || !got[3].Day.Equal(bars[9].Day) {
		t.Fatal("first and last bar must be kept")
	}
	if len(downsampleBars(bars, 20)) != 10 {
		t.Fatal("short input should be returned as is")
	}
}

func TestWriteBarsCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := writeBarsCSV(&buf, []storage.Bar{bar(4, 5100.5, "Hold"), bar(5, 5110, "")}); err != nil {
		t.Fatalf("csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %q", buf.String())
	}
	if lines[1] != "2024-03-04,5099.5,5102.5,5098.5,5100.5,1000,0,0,Hold,55.25" {
		t.Fatalf("unexpected row %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], ",,") {
		t.Fatalf("bar without decision should leave columns empty: %q", lines[2])
	}
}

func TestWriteBarsTable(t *testing.T) {
	var buf bytes.Buffer
	if err := writeBarsTable(&buf, []storage.Bar{bar(8, 5123.4, "Buy")}); err != nil {
		t.Fatalf("table: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Mar 8, 2024", "5123.40", "Buy", "55.3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	_ = writeBarsTable(&buf, nil)
	if strings.TrimSpace(buf.String()) != "no bars found" {
		t.Fatalf("unexpected empty output %q", buf.String())
	}
}

func TestBarsToPointsCarriesDecision(t *testing.T) {
	points := barsToPoints([]storage.Bar{bar(4, 10, "Hold"), bar(5, 11, "Buy")})
	if !model.HasDecisions(points) {
		t.Fatal("decisions should be carried over")
	}
	if points[0].Decision.Signal != model.SignalHold || points[0].Decision.Value != 55.25 {
		t.Fatalf("score should win over the stored label: %+v", points[0].Decision)
	}
	if points[1].Close != 11 {
		t.Fatalf("unexpected close %v", points[1].Close)
	}
}

type fakeSource struct {
	batch model.Batch
	err   error
}

func (f *fakeSource) Fetch(context.Context) (model.Batch, error) { return f.batch, f.err }
func (f *fakeSource) Name() string { return "fake" }

type fakeBarStore struct {
	locked   bool
	upserted []storage.Bar
	unlocked bool
}

func (f *fakeBarStore) UpsertBars(_ context.Context, bars []storage.Bar) error {
	f.upserted = append(f.upserted, bars...)
	return nil
}

func (f *fakeBarStore) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	if f.locked {
		return nil, false, nil
	}
	return func() { f.unlocked = true }, true, nil
}

func ingestBatch() model.Batch {
	return model.Batch{
		{Key: "0", Values: []any{1.0, 2.0, 0.5, 1.5, 100.0, 0.0, 0.0, "2024-3-4", 40.0}},
		{Key: "1", Values: []any{1.5, 2.5, 1.0, 2.0, 100.0, 0.0, 0.0, "2024-3-5", 70.0}},
	}
}

func TestIngesterUpsertsUnderLock(t *testing.T) {
	store := &fakeBarStore{}
	ing := &ingester{source: &fakeSource{batch: ingestBatch()}, store: store, symbol: "^GSPC", logger: testLogger()}

	n, err := ing.run(context.Background())
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if n != 2 || len(store.upserted) != 2 || !store.unlocked {
		t.Fatalf("unexpected ingest result n=%d upserted=%d unlocked=%v", n, len(store.upserted), store.unlocked)
	}
	if *store.upserted[1].Signal != "Buy" {
		t.Fatalf("unexpected signal %s", *store.upserted[1].Signal)
	}
}

func TestIngesterSkipsWhenLocked(t *testing.T) {
	store := &fakeBarStore{locked: true}
	ing := &ingester{source: &fakeSource{batch: ingestBatch()}, store: store, symbol: "^GSPC", logger: testLogger()}

	if n, err := ing.run(context.Background()); err != nil || n != 0 || len(store.upserted) != 0 {
		t.Fatalf("locked ingest should be a no-op, got n=%d err=%v", n, err)
	}
}

func TestIngesterDryRunAndErrors(t *testing.T) {
	store := &fakeBarStore{}
	ing := &ingester{source: &fakeSource{batch: ingestBatch()}, store: store, dryRun: true, logger: testLogger()}
	if _, err := ing.run(context.Background()); err != nil || len(store.upserted) != 0 {
		t.Fatalf("dry-run must not write, err=%v", err)
	}

	ing = &ingester{source: &fakeSource{err: errors.New("timeout")}, store: store, logger: testLogger()}
	if _, err := ing.run(context.Background()); err == nil {
		t.Fatal("fetch errors should propagate")
	}
}

type fakeInspector struct {
	snap playback.Snapshot
	err  error
}

func (f *fakeInspector) Inspect(context.Context) (playback.Snapshot, error) { return f.snap, f.err }

func TestStatusEndpoint(t *testing.T) {
	updated := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	insp := &fakeInspector{snap: playback.Snapshot{
		State:       playback.StateReplaying,
		Cycle:       3,
		Cursor:      7,
		Length:      20,
		Window:      make([]model.DataPoint, 7),
		LastUpdated: updated,
	}}
	mux := newMux(insp, http.NotFoundHandler(), metrics.NewMetrics(nil), testLogger())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var view statusView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.State != "replaying" || view.WindowLen != 7 || view.StatusText != "Last updated: 3/9/2024, 2:05:07 PM" {
		t.Fatalf("unexpected view %+v", view)
	}

	insp.err = playback.ErrStopped
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("stopped engine should yield 503, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
}

func TestSinksFollowConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Render.Log = true
	cfg.Alerting.Enabled = true // no channel: alerts stay off
	a := NewApp(cfg, testLogger())

	renderer, statuses, decisions := a.sinks(nil)
	if renderer.Len() != 1 || len(statuses) != 1 || decisions != nil {
		t.Fatalf("unexpected sinks: renderers=%d statuses=%d alerts=%v", renderer.Len(), len(statuses), decisions != nil)
	}
}

func TestNewSourceRejectsPostgresWithoutDSN(t *testing.T) {
	cfg := &config.Config{}
	cfg.Source.Kind = config.SourcePostgres
	a := NewApp(cfg, testLogger())
	if _, _, err := a.newSource(context.Background()); err == nil {
		t.Fatal("postgres source without dsn should fail")
	}
}

func TestSimulateAlertRequiresChannel(t *testing.T) {
	cfg := &config.Config{}
	a := NewApp(cfg, testLogger())
	if err := a.SimulateAlert(context.Background(), model.SignalHold, model.SignalBuy, decimal.NewFromInt(1)); err == nil {
		t.Fatal("disabled alerting should fail")
	}
	cfg.Alerting.Enabled = true
	if err := a.SimulateAlert(context.Background(), model.SignalHold, model.SignalBuy, decimal.NewFromInt(1)); err == nil {
		t.Fatal("missing channel should fail")
	}
}
