package domain

import (
	"fmt"
	"time"
)

// Clock is a point-in-time snapshot of the broker's trading session.
type Clock struct {
	Timestamp time.Time
	IsOpen    bool
	NextOpen  time.Time
	NextClose time.Time
}

// MarketStatus is the scheduler's verdict for one iteration of the main loop.
type MarketStatus int

const (
	MarketOpen MarketStatus = iota
	MarketAboutToClose
)

func (s MarketStatus) String() string {
	switch s {
	case MarketOpen:
		return "open"
	case MarketAboutToClose:
		return "about_to_close"
	default:
		return fmt.Sprintf("market_status(%d)", int(s))
	}
}

// TimeUnit is the granularity of a bar lookback window.
type TimeUnit string

const (
	TimeUnitMinute TimeUnit = "minute"
	TimeUnitHour   TimeUnit = "hour"
	TimeUnitDay    TimeUnit = "day"
)

// TimePeriod is a lookback window of Length units. Bars are requested at
// the unit's granularity.
type TimePeriod struct {
	Unit   TimeUnit
	Length int
}

func Minutes(n int) TimePeriod { return TimePeriod{Unit: TimeUnitMinute, Length: n} }
func Hours(n int) TimePeriod   { return TimePeriod{Unit: TimeUnitHour, Length: n} }
func Days(n int) TimePeriod    { return TimePeriod{Unit: TimeUnitDay, Length: n} }

// Duration returns the wall-clock span covered by the period.
func (p TimePeriod) Duration() time.Duration {
	switch p.Unit {
	case TimeUnitMinute:
		return time.Duration(p.Length) * time.Minute
	case TimeUnitHour:
		return time.Duration(p.Length) * time.Hour
	case TimeUnitDay:
		return time.Duration(p.Length) * 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether the period has a known unit and a positive length.
func (p TimePeriod) Valid() bool {
	return p.Length > 0 && p.Duration() > 0
}
