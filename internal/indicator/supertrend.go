package indicator

import (
	movingaverage "github.com/RobinUS2/golang-moving-average"

	"nifty-signal/internal/model"
)

// Supertrend classifies the close against bands of hl2 ± multiplier·range,
// where range is the highest high minus the lowest low of the trailing
// period bars. This is a simplified range proxy, not Wilder's ATR: there is
// no prior-close term and no smoothing.
//
// The trend is neutral until the window holds period bars.
type Supertrend struct {
	period     int
	multiplier float64

	highs *movingaverage.MovingAverage
	lows  *movingaverage.MovingAverage

	atr   float64
	upper float64
	lower float64
	trend model.Trend
}

// NewSupertrend creates a Supertrend over the given window and multiplier.
func NewSupertrend(period int, multiplier float64) *Supertrend {
	return &Supertrend{
		period:     period,
		multiplier: multiplier,
		highs:      movingaverage.New(period),
		lows:       movingaverage.New(period),
	}
}

func (s *Supertrend) Name() string { return "SUPERTREND_10_3" }

func (s *Supertrend) Update(bar model.Bar) {
	s.highs.Add(bar.High)
	s.lows.Add(bar.Low)

	if !s.highs.SlotsFilled() {
		s.trend = model.TrendNeutral
		return
	}

	hh, err := s.highs.Max()
	if err != nil {
		s.trend = model.TrendNeutral
		return
	}
	ll, err := s.lows.Min()
	if err != nil {
		s.trend = model.TrendNeutral
		return
	}

	hl2 := bar.HL2()
	s.atr = hh - ll
	s.upper = hl2 + s.multiplier*s.atr
	s.lower = hl2 - s.multiplier*s.atr

	switch {
	case bar.Close > s.upper:
		s.trend = model.TrendBuy
	case bar.Close < s.lower:
		s.trend = model.TrendSell
	default:
		s.trend = model.TrendNeutral
	}
}

func (s *Supertrend) Trend() model.Trend { return s.trend }
func (s *Supertrend) Ready() bool        { return s.highs.SlotsFilled() }

// Bands returns the last computed upper and lower bands. Zero until Ready.
func (s *Supertrend) Bands() (upper, lower float64) { return s.upper, s.lower }

// ATR returns the last computed range proxy. Zero until Ready.
func (s *Supertrend) ATR() float64 { return s.atr }

func (s *Supertrend) Reset() {
	s.highs = movingaverage.New(s.period)
	s.lows = movingaverage.New(s.period)
	s.atr, s.upper, s.lower = 0, 0, 0
	s.trend = model.TrendNeutral
}
