package fetcher

import (
	"errors"
	"math"
	"testing"
	"time"

	"nifty-signal/internal/model"
)

func TestNormalize_SortsDedupesAndDropsInvalid(t *testing.T) {
	t0 := time.Date(2026, 10, 19, 3, 45, 0, 0, time.UTC)
	bar := func(min int, c float64) model.Bar {
		return model.Bar{TS: t0.Add(time.Duration(min) * time.Minute), Open: c, High: c, Low: c, Close: c, Volume: 10}
	}

	in := []model.Bar{
		bar(10, 103),
		bar(0, 100),
		bar(5, 101),
		bar(5, 102), // replaces the earlier 5-minute bar
		bar(15, math.NaN()),
		bar(20, 0),
	}
	got := Normalize(in)

	if len(got) != 3 {
		t.Fatalf("expected 3 bars, got %d: %+v", len(got), got)
	}
	want := []float64{100, 102, 103}
	for i, b := range got {
		if b.Close != want[i] {
			t.Errorf("bar %d close = %v, want %v", i, b.Close, want[i])
		}
		if i > 0 && !got[i-1].TS.Before(b.TS) {
			t.Errorf("bars not strictly increasing at %d", i)
		}
	}
}

func TestNormalize_Empty(t *testing.T) {
	if got := Normalize(nil); len(got) != 0 {
		t.Errorf("expected empty result, got %d bars", len(got))
	}
}

func TestErrEmptySeries_IsFetchError(t *testing.T) {
	if !errors.Is(ErrEmptySeries, ErrFetch) {
		t.Error("ErrEmptySeries should match ErrFetch")
	}
}
