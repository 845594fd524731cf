// Package signal turns the latest enriched bar into the short textual summary
// that is sent to the chat.
package signal

import (
	"strings"

	"github.com/shopspring/decimal"

	"nifty-signal/internal/model"
)

// Separator joins the individual sub-signals.
const Separator = " | "

// Sub-signal texts.
const (
	MACDBullish    = "MACD: Bullish"
	MACDBearish    = "MACD: Bearish"
	AboveVWAP      = "Above VWAP"
	BelowVWAP      = "Below VWAP"
	SupertrendBuy  = "Supertrend: Buy"
	SupertrendSell = "Supertrend: Sell"
)

// Text is a composite signal derived solely from one enriched bar.
type Text string

func (t Text) String() string { return string(t) }

// Parts splits the text back into its sub-signals.
func (t Text) Parts() []string {
	if t == "" {
		return nil
	}
	return strings.Split(string(t), Separator)
}

// Generate builds the composite signal for bar.
//
// Ties count as bearish / below. The Supertrend clause is omitted entirely
// when the trend is neutral.
func Generate(bar model.EnrichedBar) Text {
	parts := make([]string, 0, 3)

	if bar.MACD > bar.Signal {
		parts = append(parts, MACDBullish)
	} else {
		parts = append(parts, MACDBearish)
	}

	if bar.Close > bar.VWAP {
		parts = append(parts, AboveVWAP)
	} else {
		parts = append(parts, BelowVWAP)
	}

	switch bar.Supertrend {
	case model.TrendBuy:
		parts = append(parts, SupertrendBuy)
	case model.TrendSell:
		parts = append(parts, SupertrendSell)
	}

	return Text(strings.Join(parts, Separator))
}

// Latest generates the signal for the last bar of a session.
// Returns false for an empty session.
func Latest(bars []model.EnrichedBar) (model.EnrichedBar, Text, bool) {
	if len(bars) == 0 {
		return model.EnrichedBar{}, "", false
	}
	last := bars[len(bars)-1]
	return last, Generate(last), true
}

// Format prefixes the signal with the instrument name and close price:
// "NIFTY 24812.35 → MACD: Bullish | Above VWAP".
func Format(instrument string, close float64, t Text) string {
	price := decimal.NewFromFloat(close).StringFixed(2)
	return instrument + " " + price + " → " + string(t)
}
