package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"spxreplay/internal/model"
	"spxreplay/internal/signal"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooOptions parameterise the Yahoo Finance chart source.
type YahooOptions struct {
	BaseURL   string
	Symbol    string
	Range     string
	Interval  string
	RSIPeriod int
	Timeout   time.Duration
	ProxyURL  string
}

// Yahoo fetches daily history from the Yahoo Finance chart API and annotates
// each bar with a decision score.
type Yahoo struct {
	opts    YahooOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewYahoo constructs a Yahoo history source.
func NewYahoo(opts YahooOptions, logger zerolog.Logger) *Yahoo {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if opts.Symbol == "" {
		opts.Symbol = "^GSPC"
	}
	if opts.Range == "" {
		opts.Range = "5y"
	}
	if opts.Interval == "" {
		opts.Interval = "1d"
	}
	if opts.RSIPeriod <= 0 {
		opts.RSIPeriod = 14
	}

	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if opts.ProxyURL != "" {
		if u, err := url.Parse(opts.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultYahooBaseURL
	}

	return &Yahoo{
		opts:    opts,
		logger:  logger.With().Str("component", "yahoo_source").Str("symbol", opts.Symbol).Logger(),
		client:  &http.Client{Timeout: timeout, Transport: transport},
		baseURL: baseURL,
	}
}

func (y *Yahoo) Name() string { return "yahoo" }

type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				GMTOffset int64 `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp []int64 `json:"timestamp"`
			Events    struct {
				Dividends map[string]struct {
					Amount float64 `json:"amount"`
					Date   int64   `json:"date"`
				} `json:"dividends"`
				Splits map[string]struct {
					Date        int64   `json:"date"`
					Numerator   float64 `json:"numerator"`
					Denominator float64 `json:"denominator"`
				} `json:"splits"`
			} `json:"events"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type yahooBar struct {
	ts        time.Time
	candle    signal.Candle
	volume    float64
	dividends float64
	splits    float64
}

// Fetch downloads the configured range and returns it oldest first.
func (y *Yahoo) Fetch(ctx context.Context) (model.Batch, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s&events=div,splits",
		y.baseURL, url.PathEscape(y.opts.Symbol), url.QueryEscape(y.opts.Interval), url.QueryEscape(y.opts.Range))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", "application/json")

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, body)
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo: no data returned")
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	offset := time.Duration(result.Meta.GMTOffset) * time.Second

	dividends := make(map[int64]float64, len(result.Events.Dividends))
	for _, d := range result.Events.Dividends {
		dividends[d.Date] = d.Amount
	}
	splits := make(map[int64]float64, len(result.Events.Splits))
	for _, s := range result.Events.Splits {
		if s.Denominator != 0 {
			splits[s.Date] = s.Numerator / s.Denominator
		}
	}

	bars := make([]yahooBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o, h, l, c := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i)
		if o == nil || h == nil || l == nil || c == nil {
			continue // holidays and partial sessions come back as nulls
		}
		volume := 0.0
		if v := at(quote.Volume, i); v != nil {
			volume = *v
		}
		bars = append(bars, yahooBar{
			ts:        time.Unix(ts, 0).UTC().Add(offset),
			candle:    signal.Candle{Open: *o, High: *h, Low: *l, Close: *c},
			volume:    volume,
			dividends: dividends[ts],
			splits:    splits[ts],
		})
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].ts.Before(bars[j].ts) })

	candles := make([]signal.Candle, len(bars))
	for i, b := range bars {
		candles[i] = b.candle
	}
	scores := signal.Scores(candles, y.opts.RSIPeriod)

	batch := make(model.Batch, len(bars))
	for i, b := range bars {
		batch[i] = model.RawRecord{
			Key: strconv.Itoa(i),
			Values: []any{
				b.candle.Open, b.candle.High, b.candle.Low, b.candle.Close,
				b.volume, b.dividends, b.splits,
				fmt.Sprintf("%d-%d-%d", b.ts.Year(), int(b.ts.Month()), b.ts.Day()),
				scores[i],
			},
		}
	}

	y.logger.Debug().Int("bars", len(batch)).Msg("history fetched")
	return batch, nil
}

func at(values []*float64, i int) *float64 {
	if i >= len(values) {
		return nil
	}
	return values[i]
}

var _ Source = (*Yahoo)(nil)
