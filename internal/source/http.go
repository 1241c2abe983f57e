package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"spxreplay/internal/model"
)

const defaultUserAgent = "spxreplay/1.0"

// HTTPOptions parameterise the JSON batch endpoint source.
type HTTPOptions struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
}

// HTTP fetches a batch from an endpoint serving the keyed record format.
type HTTP struct {
	opts   HTTPOptions
	logger zerolog.Logger
	client *http.Client
}

// NewHTTP constructs an HTTP batch source.
func NewHTTP(opts HTTPOptions, logger zerolog.Logger) *HTTP {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTP{
		opts:   opts,
		logger: logger.With().Str("component", "http_source").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

func (h *HTTP) Name() string { return "http" }

// Fetch retrieves and decodes the full batch.
func (h *HTTP) Fetch(ctx context.Context) (model.Batch, error) {
	if strings.TrimSpace(h.opts.URL) == "" {
		return nil, fmt.Errorf("source url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.opts.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(h.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", defaultUserAgent)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	batch, err := DecodeBatch(payload)
	if err != nil {
		return nil, err
	}
	h.logger.Debug().Int("records", len(batch)).Msg("batch fetched")
	return batch, nil
}

func parseHTTPError(status int, payload []byte) error {
	if body := strings.TrimSpace(string(payload)); body != "" {
		if len(body) > 256 {
			body = body[:256]
		}
		return fmt.Errorf("source http error (%d): %s", status, body)
	}
	return fmt.Errorf("source http error (%d)", status)
}

var _ Source = (*HTTP)(nil)
