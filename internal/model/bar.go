package model

import "time"

// Bar is one fixed-interval OHLCV sample of the tracked index.
// Bars are immutable once fetched and ordered chronologically within a session.
type Bar struct {
	TS     time.Time `json:"ts"` // bucket start time
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// TypicalPrice returns (High+Low+Close)/3.
func (b *Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3
}

// HL2 returns the bar midpoint (High+Low)/2.
func (b *Bar) HL2() float64 {
	return (b.High + b.Low) / 2
}
