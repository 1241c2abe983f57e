package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestParseOptionalDuration(t *testing.T) {
	if d, err := parseOptionalDuration("every", ""); err != nil || d != 0 {
		t.Fatalf("empty value should mean once, got %s %v", d, err)
	}
	if d, err := parseOptionalDuration("every", "24h"); err != nil || d != 24*time.Hour {
		t.Fatalf("unexpected duration %s %v", d, err)
	}
	for _, bad := range []string{"tomorrow", "-1h", "0s"} {
		if _, err := parseOptionalDuration("every", bad); err == nil {
			t.Fatalf("%q should be rejected", bad)
		}
	}
}

func TestParseDay(t *testing.T) {
	got, err := parseDay("from", "2024-03-04")
	if err != nil || !got.Equal(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected day %v %v", got, err)
	}
	if got, err := parseDay("from", ""); err != nil || got != nil {
		t.Fatal("empty value should be nil")
	}
	if _, err := parseDay("to", "03/04/2024"); err == nil || !strings.Contains(err.Error(), "--to") {
		t.Fatalf("expected flag-named error, got %v", err)
	}
}

func TestVersionSkipsConfig(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version", "--config", "/nonexistent/config.yaml"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version should not load config: %v", err)
	}
	if !strings.HasPrefix(out.String(), "spxreplay dev") {
		t.Fatalf("unexpected version output %q", out.String())
	}
}
