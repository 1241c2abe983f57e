package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"spxreplay/internal/model"
	"spxreplay/internal/playback"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func points(n int, withDecision bool) []model.DataPoint {
	out := make([]model.DataPoint, n)
	for i := range out {
		c := 4000 + float64(i)
		out[i] = model.DataPoint{
			Timestamp: time.Date(2024, 3, 1+i, 0, 0, 0, 0, time.UTC),
			Open:      c - 5, High: c + 10, Low: c - 10, Close: c,
			Volume: 1e9,
		}
		if withDecision {
			out[i].Decision = &model.Decision{Signal: model.SignalHold, Value: 50}
		}
	}
	return out
}

func frameOf(window []model.DataPoint, cycle uint64) playback.Frame {
	labels, series := playback.BuildFrame(window, model.HasDecisions(window))
	return playback.Frame{
		Cycle:  cycle,
		Cursor: len(window) - 1,
		Total:  len(window),
		Point:  window[len(window)-1],
		Window: window,
		Labels: labels,
		Series: series,
	}
}

func TestLogSinkWritesFrame(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))

	if err := sink.Render(context.Background(), frameOf(points(3, true), 1)); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"close":"$4002.00"`, `"progress":"3/3"`, `"decision":"Hold"`, `"day":"Mar 3, 2024"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %s: %s", want, out)
		}
	}
}

func TestPrice(t *testing.T) {
	if got := Price(4123.456); got != "$4123.46" {
		t.Fatalf("unexpected price %s", got)
	}
}

func TestWritePNG(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePNG(&buf, points(10, true), true, ChartOptions{Width: 320, Height: 200}); err != nil {
		t.Fatalf("write png: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if img.Bounds().Dx() != 320 {
		t.Fatalf("unexpected width %d", img.Bounds().Dx())
	}
}

func TestBuildChartRejectsDegenerateRange(t *testing.T) {
	if _, err := BuildChart(points(1, false), false, ChartOptions{}); !errors.Is(err, ErrTooFewPoints) {
		t.Fatalf("expected ErrTooFewPoints, got %v", err)
	}
	same := points(2, false)
	same[1].Timestamp = same[0].Timestamp
	if _, err := BuildChart(same, false, ChartOptions{}); !errors.Is(err, ErrTooFewPoints) {
		t.Fatalf("identical timestamps should be rejected, got %v", err)
	}
}

func TestPNGSinkSkipsShortWindowAndWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "window.png")
	sink := NewPNGSink(PNGOptions{Path: path, Width: 320, Height: 200}, testLogger())

	if err := sink.Render(context.Background(), frameOf(points(1, false), 1)); err != nil {
		t.Fatalf("single point frame should be skipped, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("no file expected for a single point window")
	}

	if err := sink.Render(context.Background(), frameOf(points(5, false), 1)); err != nil {
		t.Fatalf("render: %v", err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Fatalf("chart file not written: %v", err)
	}
	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	if len(leftovers) != 0 {
		t.Fatalf("temporary files left behind: %v", leftovers)
	}
}

func descending(n int) []model.DataPoint {
	asc := points(n, false)
	out := make([]model.DataPoint, n)
	for i, p := range asc {
		out[n-1-i] = p
	}
	return out
}

func TestBuildChartAcceptsNewestFirstWindow(t *testing.T) {
	if _, err := BuildChart(descending(5), false, ChartOptions{}); err != nil {
		t.Fatalf("newest first window should chart, got %v", err)
	}
}

func TestPNGSinkWritesNewestFirstWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "window.png")
	sink := NewPNGSink(PNGOptions{Path: path, Width: 320, Height: 200}, testLogger())

	if err := sink.Render(context.Background(), frameOf(descending(5), 1)); err != nil {
		t.Fatalf("render: %v", err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Fatalf("chart file not written: %v", err)
	}
}

type failingRenderer struct{ calls int }

func (f *failingRenderer) Render(context.Context, playback.Frame) error {
	f.calls++
	return errors.New("disk full")
}

type countingRenderer struct{ calls int }

func (c *countingRenderer) Render(context.Context, playback.Frame) error {
	c.calls++
	return nil
}

func TestMultiStopsAtFirstFailure(t *testing.T) {
	first, failing, last := &countingRenderer{}, &failingRenderer{}, &countingRenderer{}
	var m Multi
	m.Add("first", first)
	m.Add("png", failing)
	m.Add("last", last)

	err := m.Render(context.Background(), frameOf(points(2, false), 1))
	if err == nil || !strings.HasPrefix(err.Error(), "png: ") {
		t.Fatalf("expected error prefixed with sink name, got %v", err)
	}
	if first.calls != 1 || last.calls != 0 {
		t.Fatalf("unexpected fan-out calls first=%d last=%d", first.calls, last.calls)
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestHubReplaysLatestAndBroadcasts(t *testing.T) {
	hub := NewHub(testLogger())
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	hub.UpdateStatus(playback.NewStatus(time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC), 3))
	if err := hub.Render(context.Background(), frameOf(points(2, false), 1)); err != nil {
		t.Fatalf("render: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if env := readEnvelope(t, conn); env.Type != "status" || env.Status.Points != 3 {
		t.Fatalf("expected status first, got %+v", env)
	}
	if env := readEnvelope(t, conn); env.Type != "frame" || len(env.Frame.Window) != 2 {
		t.Fatalf("expected latest frame, got %+v", env)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := hub.Render(context.Background(), frameOf(points(3, false), 2)); err != nil {
		t.Fatalf("render: %v", err)
	}
	env := readEnvelope(t, conn)
	if env.Type != "frame" || env.Frame.Cycle != 2 || len(env.Frame.Series) != 4 {
		t.Fatalf("unexpected broadcast %+v", env)
	}
}

func TestHubRejectsClientsAfterClose(t *testing.T) {
	hub := NewHub(testLogger())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	hub.Close()
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err == nil {
		conn.Close()
		t.Fatal("dial should fail once the hub is closed")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %+v", resp)
	}
	if hub.ClientCount() != 0 {
		t.Fatalf("closed hub registered %d clients", hub.ClientCount())
	}
	hub.Close()
}

type recordingStatus struct{ got []playback.Status }

func (r *recordingStatus) UpdateStatus(s playback.Status) { r.got = append(r.got, s) }

func TestStatusesFanOut(t *testing.T) {
	a, b := &recordingStatus{}, &recordingStatus{}
	Statuses{a, b}.UpdateStatus(playback.NewStatus(time.Now(), 1))
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatal("every sink should receive the status")
	}
}
