package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"nifty-signal/internal/model"
)

const defaultYahooBase = "https://query1.finance.yahoo.com"

// YahooConfig configures the Yahoo Finance chart fetcher.
type YahooConfig struct {
	Symbol         string        // e.g. "^NSEI"
	BaseURL        string        // default: https://query1.finance.yahoo.com
	Timeout        time.Duration // per request, default 10s
	MaxElapsedTime time.Duration // retry budget, default 30s
	RequestsPerSec float64       // default 1
	HTTPClient     *http.Client
}

// YahooFetcher reads today's 5-minute bars from the Yahoo chart API.
type YahooFetcher struct {
	symbol         string
	baseURL        string
	client         *http.Client
	limiter        *rate.Limiter
	maxElapsedTime time.Duration
}

// NewYahooFetcher creates a fetcher for cfg.Symbol.
func NewYahooFetcher(cfg YahooConfig) *YahooFetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultYahooBase
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxElapsedTime == 0 {
		cfg.MaxElapsedTime = 30 * time.Second
	}
	if cfg.RequestsPerSec == 0 {
		cfg.RequestsPerSec = 1
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &YahooFetcher{
		symbol:         cfg.Symbol,
		baseURL:        cfg.BaseURL,
		client:         client,
		limiter:        rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
		maxElapsedTime: cfg.MaxElapsedTime,
	}
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

// HTTPStatusError is a non-200 response from the chart API.
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("non-200 status code: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// FetchSession implements Fetcher.
func (y *YahooFetcher) FetchSession(ctx context.Context) ([]model.Bar, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: yahoo: rate limiter: %v", ErrFetch, err)
	}

	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=5m&range=1d", y.baseURL, url.PathEscape(y.symbol))

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; nifty-signal/1.0)")
		req.Header.Set("Accept", "application/json")

		resp, err := y.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			statusErr := &HTTPStatusError{StatusCode: resp.StatusCode}
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(statusErr)
			}
			return statusErr
		}
		body, err = io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = y.maxElapsedTime
	notify := func(err error, wait time.Duration) {
		slog.Warn("[fetcher] yahoo request failed, retrying",
			slog.String("symbol", y.symbol),
			slog.Duration("wait", wait),
			slog.Any("error", err),
		)
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, fmt.Errorf("%w: yahoo %s: %v", ErrFetch, y.symbol, err)
	}

	bars, err := decodeChart(body)
	if err != nil {
		return nil, fmt.Errorf("%w: yahoo %s: %v", ErrFetch, y.symbol, err)
	}
	bars = Normalize(bars)
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: yahoo %s", ErrEmptySeries, y.symbol)
	}
	return bars, nil
}

// decodeChart converts a chart payload into bars. Rows with any null price
// field are skipped; a null volume counts as zero.
func decodeChart(body []byte) ([]model.Bar, error) {
	var cr chartResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if cr.Chart.Error != nil {
		return nil, fmt.Errorf("api error %s: %s", cr.Chart.Error.Code, cr.Chart.Error.Description)
	}
	if len(cr.Chart.Result) == 0 || len(cr.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	res := cr.Chart.Result[0]
	q := res.Indicators.Quote[0]
	bars := make([]model.Bar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		o, h, l, c := at(q.Open, i), at(q.High, i), at(q.Low, i), at(q.Close, i)
		if o == nil || h == nil || l == nil || c == nil {
			continue
		}
		var vol int64
		if v := at(q.Volume, i); v != nil {
			vol = int64(*v)
		}
		bars = append(bars, model.Bar{
			TS:     time.Unix(ts, 0).UTC(),
			Open:   *o,
			High:   *h,
			Low:    *l,
			Close:  *c,
			Volume: vol,
		})
	}
	return bars, nil
}

func at(vals []*float64, i int) *float64 {
	if i < len(vals) {
		return vals[i]
	}
	return nil
}
