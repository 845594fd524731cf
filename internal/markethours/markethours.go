// Package markethours answers whether the NSE cash session is open.
package markethours

import (
	"fmt"
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Session bounds in IST. Both ends are inclusive.
const (
	OpenHour    = 9
	OpenMinute  = 15
	CloseHour   = 15
	CloseMinute = 30
)

// IsMarketOpen returns true iff t falls on Mon–Fri and its IST time of day
// is within 09:15–15:30 inclusive. Holidays are not considered.
func IsMarketOpen(t time.Time) bool {
	if !IsWeekday(t) {
		return false
	}
	ist := t.In(IST)
	hm := ist.Hour()*60 + ist.Minute()
	return hm >= OpenHour*60+OpenMinute && hm <= CloseHour*60+CloseMinute
}

// Gate is the market-hours predicate used by the session loop.
type Gate struct {
	// SkipHolidays also treats NSE holidays as closed.
	SkipHolidays bool
}

// Open reports whether the loop should poll at t.
func (g Gate) Open(t time.Time) bool {
	if !IsMarketOpen(t) {
		return false
	}
	return !g.SkipHolidays || !IsHoliday(t)
}

// IsWeekday returns true if t is Mon–Fri in IST.
func IsWeekday(t time.Time) bool {
	wd := t.In(IST).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	return IsWeekday(t) && !IsHoliday(t)
}

// NextOpen returns the next session open (09:15 IST on the next trading day,
// holidays included). If t is before today's open on a trading day, returns
// today's open.
func NextOpen(t time.Time) time.Time {
	return Gate{SkipHolidays: true}.NextOpen(t)
}

// tradingDay reports whether the gate polls at all on t's IST day.
func (g Gate) tradingDay(t time.Time) bool {
	if g.SkipHolidays {
		return IsTradingDay(t)
	}
	return IsWeekday(t)
}

// NextOpen returns the next 09:15 IST at which g opens, counting today if t
// is before today's open.
func (g Gate) NextOpen(t time.Time) time.Time {
	ist := t.In(IST)

	todayOpen := time.Date(ist.Year(), ist.Month(), ist.Day(), OpenHour, OpenMinute, 0, 0, IST)
	if ist.Before(todayOpen) && g.tradingDay(ist) {
		return todayOpen
	}

	d := ist.AddDate(0, 0, 1)
	for i := 0; i < 10; i++ { // holidays + weekends never span more than this
		if g.tradingDay(d) {
			return time.Date(d.Year(), d.Month(), d.Day(), OpenHour, OpenMinute, 0, 0, IST)
		}
		d = d.AddDate(0, 0, 1)
	}
	return time.Date(ist.Year(), ist.Month(), ist.Day()+1, OpenHour, OpenMinute, 0, 0, IST)
}

// TodayClose returns today's session close (15:30 IST).
func TodayClose(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), CloseHour, CloseMinute, 0, 0, IST)
}

// TimeUntilClose returns the duration until today's close, or 0 if closed.
func TimeUntilClose(t time.Time) time.Duration {
	d := TodayClose(t).Sub(t.In(IST))
	if d < 0 {
		return 0
	}
	return d
}

// SessionStart returns 09:15 IST on t's IST calendar day.
func SessionStart(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), OpenHour, OpenMinute, 0, 0, IST)
}

// StatusString returns a human-readable market status for the plain
// weekday predicate.
func StatusString(t time.Time) string {
	return Gate{}.StatusString(t)
}

// StatusString returns a human-readable status consistent with g.Open.
func (g Gate) StatusString(t time.Time) string {
	if g.Open(t) {
		return fmt.Sprintf("Market Open — closes in %s", fmtDur(TimeUntilClose(t)))
	}
	prefix := "Market Closed"
	if g.SkipHolidays && IsMarketOpen(t) {
		prefix = "Market Holiday"
	}
	next := g.NextOpen(t)
	ist := next.In(IST)
	return fmt.Sprintf("%s — opens %s %s (%s)",
		prefix, ist.Weekday().String()[:3], ist.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
