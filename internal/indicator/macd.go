package indicator

import "nifty-signal/internal/model"

// MACD tracks EMA12 and EMA26 of the close, their difference, and the EMA9
// signal line of that difference.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
	macd   float64
}

// NewMACD creates a MACD with the standard 12/26/9 spans.
func NewMACD() *MACD {
	return &MACD{
		fast:   NewEMA(FastSpan),
		slow:   NewEMA(SlowSpan),
		signal: NewEMA(SignalSpan),
	}
}

func (m *MACD) Name() string { return "MACD_12_26_9" }

func (m *MACD) Update(bar model.Bar) {
	fast := m.fast.Add(bar.Close)
	slow := m.slow.Add(bar.Close)
	m.macd = fast - slow
	m.signal.Add(m.macd)
}

func (m *MACD) Fast() float64   { return m.fast.Value() }
func (m *MACD) Slow() float64   { return m.slow.Value() }
func (m *MACD) Value() float64  { return m.macd }
func (m *MACD) Signal() float64 { return m.signal.Value() }
func (m *MACD) Ready() bool     { return m.fast.Ready() }

func (m *MACD) Reset() {
	m.fast.Reset()
	m.slow.Reset()
	m.signal.Reset()
	m.macd = 0
}
