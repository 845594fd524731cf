// Package session runs the polling loop: market-hours gate, fetch, enrich,
// generate, change-gated notify, sleep.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"nifty-signal/internal/fetcher"
	"nifty-signal/internal/indicator"
	"nifty-signal/internal/logger"
	"nifty-signal/internal/markethours"
	"nifty-signal/internal/metrics"
	"nifty-signal/internal/model"
	"nifty-signal/internal/notification"
	"nifty-signal/internal/signal"
)

// OutsideHoursMessage is printed on every cycle outside market hours.
const OutsideHoursMessage = "Outside market hours..."

// BarSink receives each cycle's enriched session (e.g. the SQLite journal).
type BarSink interface {
	WriteSession(ctx context.Context, instrument string, bars []model.EnrichedBar) error
}

// Config holds loop settings.
type Config struct {
	Instrument   string
	PollInterval time.Duration // inside market hours, default 5m
	IdleInterval time.Duration // outside market hours, default 10m
	Hours        markethours.Gate
}

// Deps are the loop's collaborators. Fetcher and Gate are required; the
// rest default to the wall clock, a real timer, stdout and no sink.
type Deps struct {
	Fetcher fetcher.Fetcher
	Gate    *notification.Gate
	Clock   Clock
	Sleeper Sleeper
	Console io.Writer
	Sink    BarSink
	Metrics *metrics.Metrics
	Health  *metrics.HealthStatus
}

// Loop is a strictly sequential polling loop. Not safe for concurrent use.
type Loop struct {
	cfg     Config
	fetcher fetcher.Fetcher
	gate    *notification.Gate
	clock   Clock
	sleeper Sleeper
	console io.Writer
	sink    BarSink
	metrics *metrics.Metrics
	health  *metrics.HealthStatus

	engine *indicator.Engine
	state  notification.State

	// bars already fed to engine, and their enriched output
	seen     []model.Bar
	enriched []model.EnrichedBar
}

// New creates a loop.
func New(cfg Config, deps Deps) *Loop {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = 10 * time.Minute
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Sleeper == nil {
		deps.Sleeper = TimerSleeper{}
	}
	if deps.Console == nil {
		deps.Console = os.Stdout
	}
	return &Loop{
		cfg:     cfg,
		fetcher: deps.Fetcher,
		gate:    deps.Gate,
		clock:   deps.Clock,
		sleeper: deps.Sleeper,
		console: deps.Console,
		sink:    deps.Sink,
		metrics: deps.Metrics,
		health:  deps.Health,
		engine:  indicator.NewEngine(),
	}
}

// State returns the last emitted signal state.
func (l *Loop) State() notification.State { return l.state }

// Run executes cycles until ctx is cancelled and returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	slog.Info("[session] loop started",
		slog.String("instrument", l.cfg.Instrument),
		slog.Duration("poll", l.cfg.PollInterval),
		slog.Duration("idle", l.cfg.IdleInterval),
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		next := l.RunCycle(ctx)
		if err := l.sleeper.Sleep(ctx, next); err != nil {
			slog.Info("[session] loop stopped", slog.Any("reason", err))
			return err
		}
	}
}

// RunCycle performs one cycle and returns how long to sleep before the next.
// Errors are logged and counted; none of them stops the loop.
func (l *Loop) RunCycle(ctx context.Context) time.Duration {
	now := l.clock.Now()
	ctx = logger.WithCycleID(ctx, logger.NewCycleID(l.cfg.Instrument, now))
	if l.health != nil {
		defer l.health.RecordCycle(now)
	}

	open := l.cfg.Hours.Open(now)
	l.setMarketState(open)
	if !open {
		fmt.Fprintf(l.console, "%s %s\n", OutsideHoursMessage, l.cfg.Hours.StatusString(now))
		l.countCycle(metrics.OutcomeClosed)
		return l.cfg.IdleInterval
	}

	outcome := l.process(ctx)
	l.countCycle(outcome)
	return l.cfg.PollInterval
}

func (l *Loop) process(ctx context.Context) string {
	fetchStart := time.Now()
	bars, err := l.fetcher.FetchSession(ctx)
	if l.metrics != nil {
		l.metrics.FetchDur.Observe(time.Since(fetchStart).Seconds())
	}
	if l.health != nil {
		l.health.RecordFetch(err)
	}
	if err != nil {
		slog.Warn("[session] fetch failed", append(logger.LogWithCycle(ctx), slog.Any("error", err))...)
		if l.metrics != nil {
			l.metrics.FetchErrors.Inc()
		}
		if errors.Is(err, fetcher.ErrEmptySeries) {
			return metrics.OutcomeNoData
		}
		return metrics.OutcomeFetchErr
	}
	if l.metrics != nil {
		l.metrics.BarsFetched.Set(float64(len(bars)))
	}

	calcStart := time.Now()
	enriched, err := l.enrich(bars)
	if l.metrics != nil {
		l.metrics.IndicatorDur.Observe(time.Since(calcStart).Seconds())
	}
	if err != nil {
		slog.Warn("[session] no indicators", append(logger.LogWithCycle(ctx), slog.Any("error", err))...)
		return metrics.OutcomeNoData
	}

	if l.sink != nil {
		if err := l.sink.WriteSession(ctx, l.cfg.Instrument, enriched); err != nil {
			slog.Warn("[session] journal write failed", append(logger.LogWithCycle(ctx), slog.Any("error", err))...)
			if l.metrics != nil {
				l.metrics.JournalErrors.Inc()
			}
		}
	}

	last, text, _ := signal.Latest(enriched)
	msg := signal.Format(l.cfg.Instrument, last.Close, text)
	if l.metrics != nil {
		l.metrics.SignalsTotal.Inc()
	}
	fmt.Fprintln(l.console, msg)

	alert := notification.Alert{
		Level:   notification.AlertInfo,
		Title:   l.cfg.Instrument,
		Message: msg,
		Signal:  text,
		Close:   last.Close,
		BarTime: last.TS,
	}
	st, sent, err := l.gate.Notify(ctx, l.state, text, alert)
	l.state = st
	if err != nil {
		slog.Error("[session] notify failed", append(logger.LogWithCycle(ctx),
			slog.String("signal", text.String()),
			slog.Any("error", err),
		)...)
		if l.health != nil {
			l.health.RecordSendFailure()
		}
		return metrics.OutcomeSendErr
	}
	if !sent {
		slog.Debug("[session] signal unchanged", append(logger.LogWithCycle(ctx), slog.String("signal", text.String()))...)
		return metrics.OutcomeUnchanged
	}

	slog.Info("[session] signal sent", append(logger.LogWithCycle(ctx),
		slog.String("signal", text.String()),
		slog.Float64("close", last.Close),
		slog.Time("bar_ts", last.TS),
	)...)
	if l.health != nil {
		l.health.RecordSent(text.String(), l.clock.Now())
	}
	if l.metrics != nil {
		l.metrics.LastSignalStamp.Set(float64(l.clock.Now().Unix()))
	}
	return metrics.OutcomeSent
}

// enrich feeds only the bars not seen before when the new series extends
// the previous one unchanged. Otherwise (new session, revised forming bar)
// the whole series is recomputed.
func (l *Loop) enrich(bars []model.Bar) ([]model.EnrichedBar, error) {
	if len(bars) == 0 {
		return nil, indicator.ErrInsufficientData
	}

	if !extends(bars, l.seen) {
		enriched, err := l.engine.Enrich(bars)
		if err != nil {
			return nil, err
		}
		l.seen = append(l.seen[:0], bars...)
		l.enriched = enriched
		return l.enriched, nil
	}

	for _, b := range bars[len(l.seen):] {
		l.enriched = append(l.enriched, l.engine.Update(b))
	}
	l.seen = append(l.seen, bars[len(l.seen):]...)
	return l.enriched, nil
}

func extends(bars, prefix []model.Bar) bool {
	if len(prefix) == 0 || len(bars) < len(prefix) {
		return false
	}
	for i := range prefix {
		if !sameBar(bars[i], prefix[i]) {
			return false
		}
	}
	return true
}

func sameBar(a, b model.Bar) bool {
	return a.TS.Equal(b.TS) && a.Open == b.Open && a.High == b.High &&
		a.Low == b.Low && a.Close == b.Close && a.Volume == b.Volume
}

func (l *Loop) setMarketState(open bool) {
	if l.health != nil {
		l.health.SetMarketOpen(open)
	}
	if l.metrics == nil {
		return
	}
	if open {
		l.metrics.MarketState.Set(1)
	} else {
		l.metrics.MarketState.Set(0)
	}
}

func (l *Loop) countCycle(outcome string) {
	if l.metrics != nil {
		l.metrics.CyclesTotal.WithLabelValues(outcome).Inc()
	}
}
