package indicator

import (
	"github.com/shopspring/decimal"

	"nifty-signal/internal/model"
)

var three = decimal.NewFromInt(3)

// VWAP is the cumulative session volume-weighted average of typical price.
//
// Sums are kept in decimal so a flat session yields exactly the close:
// (H+L+C)/3 and Σ(v·tp)/Σv lose the last bit in float64 for most index
// prices, which would flip a Close == VWAP comparison.
//
// Index feeds often report zero volume for every bar. While the cumulative
// volume is zero the value falls back to the equal-weighted running mean of
// typical price, so VWAP is defined for every bar.
type VWAP struct {
	pv      decimal.Decimal // Σ volume·typical
	volume  decimal.Decimal // Σ volume
	tpSum   decimal.Decimal // Σ typical, for the zero-volume fallback
	count   int
	current float64
}

func NewVWAP() *VWAP { return &VWAP{} }

func (v *VWAP) Name() string { return "VWAP" }

func (v *VWAP) Update(bar model.Bar) {
	tp := typicalPrice(bar)
	vol := decimal.NewFromInt(bar.Volume)
	v.pv = v.pv.Add(tp.Mul(vol))
	v.volume = v.volume.Add(vol)
	v.tpSum = v.tpSum.Add(tp)
	v.count++

	if v.volume.IsPositive() {
		v.current = v.pv.Div(v.volume).InexactFloat64()
		return
	}
	v.current = v.tpSum.Div(decimal.NewFromInt(int64(v.count))).InexactFloat64()
}

func (v *VWAP) Value() float64 { return v.current }
func (v *VWAP) Ready() bool    { return v.count > 0 }

func (v *VWAP) Reset() {
	*v = VWAP{}
}

func typicalPrice(bar model.Bar) decimal.Decimal {
	return decimal.NewFromFloat(bar.High).
		Add(decimal.NewFromFloat(bar.Low)).
		Add(decimal.NewFromFloat(bar.Close)).
		Div(three)
}
