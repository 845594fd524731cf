// Package fetcher retrieves the current trading session's 5-minute bars for
// one instrument from an external market-data source.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"nifty-signal/internal/model"
)

var (
	// ErrFetch wraps every recoverable retrieval failure.
	ErrFetch = errors.New("fetch error")
	// ErrEmptySeries is returned when the source has no bars for the session.
	ErrEmptySeries = fmt.Errorf("%w: empty series", ErrFetch)
)

// Fetcher returns the session's bars in chronological order.
type Fetcher interface {
	FetchSession(ctx context.Context) ([]model.Bar, error)
}

// Normalize sorts bars chronologically, keeps the last bar for a repeated
// timestamp and drops bars with non-finite or non-positive prices.
func Normalize(bars []model.Bar) []model.Bar {
	out := make([]model.Bar, 0, len(bars))
	for _, b := range bars {
		if !validPrice(b.Open) || !validPrice(b.High) || !validPrice(b.Low) || !validPrice(b.Close) {
			continue
		}
		if b.Volume < 0 {
			b.Volume = 0
		}
		out = append(out, b)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })

	dedup := out[:0]
	for _, b := range out {
		if n := len(dedup); n > 0 && dedup[n-1].TS.Equal(b.TS) {
			dedup[n-1] = b
			continue
		}
		dedup = append(dedup, b)
	}
	return dedup
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}
