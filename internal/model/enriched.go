package model

// Trend is the Supertrend classification of a bar.
type Trend int8

const (
	TrendSell    Trend = -1
	TrendNeutral Trend = 0
	TrendBuy     Trend = 1
)

func (t Trend) String() string {
	switch t {
	case TrendBuy:
		return "buy"
	case TrendSell:
		return "sell"
	default:
		return "neutral"
	}
}

// EnrichedBar is a Bar plus the indicator values derived from the bars up to and
// including it. Produced one-to-one by the indicator engine.
type EnrichedBar struct {
	Bar
	VWAP       float64 `json:"vwap"`
	EMA12      float64 `json:"ema12"`
	EMA26      float64 `json:"ema26"`
	MACD       float64 `json:"macd"`
	Signal     float64 `json:"signal"`
	Supertrend Trend   `json:"supertrend"`
}
