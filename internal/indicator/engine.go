package indicator

import "nifty-signal/internal/model"

// Engine enriches one session of bars with VWAP, MACD/Signal and Supertrend.
// Designed for single-goroutine usage — no locks needed.
type Engine struct {
	vwap       *VWAP
	macd       *MACD
	supertrend *Supertrend

	all   []Indicator
	count int
}

// NewEngine creates an engine with the fixed strategy parameters.
func NewEngine() *Engine {
	e := &Engine{
		vwap:       NewVWAP(),
		macd:       NewMACD(),
		supertrend: NewSupertrend(SupertrendPeriod, SupertrendMultiplier),
	}
	e.all = []Indicator{e.vwap, e.macd, e.supertrend}
	return e
}

// Update feeds the next bar of the current session and returns it enriched.
func (e *Engine) Update(bar model.Bar) model.EnrichedBar {
	for _, ind := range e.all {
		ind.Update(bar)
	}
	e.count++

	return model.EnrichedBar{
		Bar:        bar,
		VWAP:       e.vwap.Value(),
		EMA12:      e.macd.Fast(),
		EMA26:      e.macd.Slow(),
		MACD:       e.macd.Value(),
		Signal:     e.macd.Signal(),
		Supertrend: e.supertrend.Trend(),
	}
}

// Enrich recomputes a whole session from scratch. The result has the same
// length and order as bars.
func (e *Engine) Enrich(bars []model.Bar) ([]model.EnrichedBar, error) {
	if len(bars) == 0 {
		return nil, ErrInsufficientData
	}
	e.Reset()
	out := make([]model.EnrichedBar, len(bars))
	for i, b := range bars {
		out[i] = e.Update(b)
	}
	return out, nil
}

// Count returns the number of bars fed since the last Reset.
func (e *Engine) Count() int { return e.count }

// Names returns the names of the indicators the engine computes.
func (e *Engine) Names() []string {
	names := make([]string, len(e.all))
	for i, ind := range e.all {
		names[i] = ind.Name()
	}
	return names
}

// Reset clears all indicator state at session start.
func (e *Engine) Reset() {
	for _, ind := range e.all {
		ind.Reset()
	}
	e.count = 0
}

// Enrich is a convenience wrapper that enriches bars with a fresh Engine.
func Enrich(bars []model.Bar) ([]model.EnrichedBar, error) {
	return NewEngine().Enrich(bars)
}
