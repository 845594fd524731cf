package indicator

// EMA calculates an exponential moving average with smoothing span n
// (alpha = 2/(n+1)), seeded by the first value with no warm-up adjustment.
// O(1) per update — no window storage needed.
type EMA struct {
	span    int
	alpha   float64
	current float64
	count   int
}

// NewEMA creates a new EMA with the given span.
func NewEMA(span int) *EMA {
	return &EMA{
		span:  span,
		alpha: 2.0 / float64(span+1),
	}
}

// Add feeds x and returns the updated average.
func (e *EMA) Add(x float64) float64 {
	e.count++
	if e.count == 1 {
		e.current = x
		return e.current
	}
	// alpha*x + (1-alpha)*prev, written so that a flat input stays exactly flat
	e.current += e.alpha * (x - e.current)
	return e.current
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count > 0 }
func (e *EMA) Span() int      { return e.span }

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
}
