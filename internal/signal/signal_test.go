package signal

import (
	"strings"
	"testing"

	"nifty-signal/internal/model"
)

func enriched(close, vwap, macd, sig float64, st model.Trend) model.EnrichedBar {
	return model.EnrichedBar{
		Bar:        model.Bar{Close: close, High: close, Low: close, Open: close},
		VWAP:       vwap,
		MACD:       macd,
		Signal:     sig,
		Supertrend: st,
	}
}

func TestGenerate(t *testing.T) {
	cases := []struct {
		name string
		bar  model.EnrichedBar
		want Text
	}{
		{"bullish above buy", enriched(101, 100, 2, 1, model.TrendBuy), "MACD: Bullish | Above VWAP | Supertrend: Buy"},
		{"bearish below sell", enriched(99, 100, 1, 2, model.TrendSell), "MACD: Bearish | Below VWAP | Supertrend: Sell"},
		{"neutral omits clause", enriched(101, 100, 2, 1, model.TrendNeutral), "MACD: Bullish | Above VWAP"},
		{"ties are bearish and below", enriched(100, 100, 0, 0, model.TrendNeutral), "MACD: Bearish | Below VWAP"},
		{"mixed", enriched(99, 100, 3, 1, model.TrendBuy), "MACD: Bullish | Below VWAP | Supertrend: Buy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Generate(tc.bar); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestGenerate_SupertrendClause(t *testing.T) {
	for _, st := range []model.Trend{model.TrendSell, model.TrendNeutral, model.TrendBuy} {
		text := string(Generate(enriched(100, 99, 1, 0, st)))
		hasBuy := strings.Contains(text, "Buy")
		hasSell := strings.Contains(text, "Sell")

		if st == model.TrendNeutral {
			if strings.Contains(text, "Supertrend") {
				t.Errorf("neutral: expected no Supertrend clause, got %q", text)
			}
			if strings.HasSuffix(text, Separator) || strings.Contains(text, Separator+Separator) {
				t.Errorf("neutral: separator artifact in %q", text)
			}
			continue
		}
		if hasBuy == hasSell {
			t.Errorf("%v: expected exactly one of Buy/Sell, got %q", st, text)
		}
		if st == model.TrendBuy && !hasBuy {
			t.Errorf("expected Buy in %q", text)
		}
		if st == model.TrendSell && !hasSell {
			t.Errorf("expected Sell in %q", text)
		}
	}
}

func TestLatest(t *testing.T) {
	if _, _, ok := Latest(nil); ok {
		t.Fatal("expected ok=false for empty session")
	}
	bars := []model.EnrichedBar{
		enriched(99, 100, 0, 1, model.TrendNeutral),
		enriched(101, 100, 2, 1, model.TrendBuy),
	}
	last, text, ok := Latest(bars)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if last.Close != 101 {
		t.Errorf("expected last bar close 101, got %v", last.Close)
	}
	if text != "MACD: Bullish | Above VWAP | Supertrend: Buy" {
		t.Errorf("unexpected text %q", text)
	}
	if len(text.Parts()) != 3 {
		t.Errorf("expected 3 parts, got %v", text.Parts())
	}
}

func TestFormat(t *testing.T) {
	got := Format("NIFTY", 24812.349609375, "MACD: Bullish | Above VWAP")
	want := "NIFTY 24812.35 → MACD: Bullish | Above VWAP"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got := Format("NIFTY", 25000, "MACD: Bearish | Below VWAP"); got != "NIFTY 25000.00 → MACD: Bearish | Below VWAP" {
		t.Errorf("unexpected format %q", got)
	}
}
