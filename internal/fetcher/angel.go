package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pquerna/otp/totp"

	"nifty-signal/internal/markethours"
	"nifty-signal/internal/model"
	"nifty-signal/pkg/smartconnect"
)

// CandleSource is the subset of the SmartAPI client used by AngelFetcher.
type CandleSource interface {
	HasSession() bool
	GenerateSession(ctx context.Context, clientCode, password, totp string) (map[string]any, error)
	GenerateToken(ctx context.Context) (map[string]any, error)
	GetCandleData(ctx context.Context, p smartconnect.CandleParams) ([]smartconnect.Candle, error)
}

// AngelConfig holds Angel One login and instrument settings.
type AngelConfig struct {
	ClientCode  string
	Password    string
	TOTPSecret  string
	Exchange    string // default NSE
	SymbolToken string // NIFTY 50 index: 99926000
}

// AngelFetcher reads today's 5-minute candles from Angel One SmartAPI.
// It logs in lazily. When the session token is rejected it first exchanges
// the refresh token, and falls back to a full TOTP login if that fails too.
type AngelFetcher struct {
	cfg AngelConfig
	src CandleSource
	now func() time.Time
}

// NewAngelFetcher creates a fetcher on top of src.
func NewAngelFetcher(cfg AngelConfig, src CandleSource) *AngelFetcher {
	if cfg.Exchange == "" {
		cfg.Exchange = "NSE"
	}
	return &AngelFetcher{cfg: cfg, src: src, now: time.Now}
}

func (a *AngelFetcher) login(ctx context.Context) error {
	code, err := totp.GenerateCode(a.cfg.TOTPSecret, a.now())
	if err != nil {
		return fmt.Errorf("totp: %w", err)
	}
	if _, err := a.src.GenerateSession(ctx, a.cfg.ClientCode, a.cfg.Password, code); err != nil {
		return err
	}
	slog.Info("[fetcher] angel session established", slog.String("client", a.cfg.ClientCode))
	return nil
}

// FetchSession implements Fetcher.
func (a *AngelFetcher) FetchSession(ctx context.Context) ([]model.Bar, error) {
	if !a.src.HasSession() {
		if err := a.login(ctx); err != nil {
			return nil, fmt.Errorf("%w: angel login: %v", ErrFetch, err)
		}
	}

	now := a.now().In(markethours.IST)
	params := smartconnect.CandleParams{
		Exchange:    a.cfg.Exchange,
		SymbolToken: a.cfg.SymbolToken,
		Interval:    "FIVE_MINUTE",
		From:        markethours.SessionStart(now),
		To:          now,
	}

	candles, err := a.src.GetCandleData(ctx, params)
	if errors.Is(err, smartconnect.ErrToken) {
		slog.Warn("[fetcher] angel token rejected, refreshing", slog.Any("error", err))
		if _, rerr := a.src.GenerateToken(ctx); rerr == nil {
			candles, err = a.src.GetCandleData(ctx, params)
		} else {
			slog.Warn("[fetcher] angel token refresh failed", slog.Any("error", rerr))
		}
	}
	if errors.Is(err, smartconnect.ErrToken) {
		slog.Warn("[fetcher] angel refresh did not help, logging in again")
		if lerr := a.login(ctx); lerr != nil {
			return nil, fmt.Errorf("%w: angel re-login: %v", ErrFetch, lerr)
		}
		candles, err = a.src.GetCandleData(ctx, params)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: angel candles: %v", ErrFetch, err)
	}

	bars := make([]model.Bar, 0, len(candles))
	for _, c := range candles {
		bars = append(bars, model.Bar{
			TS:     c.TS,
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		})
	}
	bars = Normalize(bars)
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: angel token %s", ErrEmptySeries, a.cfg.SymbolToken)
	}
	return bars, nil
}
