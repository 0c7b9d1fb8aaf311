// Package marketcal answers trading-day questions for the US equity market
// (NYSE/NASDAQ). Trading-day boundaries are defined in exchange-local time,
// so every date computation here runs in America/New_York regardless of the
// caller's timezone.
package marketcal

import "time"

// Eastern is the exchange timezone. Daylight saving transitions are handled
// by the tz database.
var Eastern = mustLoadEastern()

func mustLoadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic("marketcal: cannot load America/New_York: " + err.Error())
	}
	return loc
}

type monthDay struct {
	month time.Month
	day   int
}

// NYSE full-day closures, keyed by year. Curated from the official NYSE
// calendar (https://www.nyse.com/markets/hours-calendars); the table must be
// extended once a year. Years without an entry degrade to weekday-only
// detection, see HasHolidayData.
var holidays = map[int][]monthDay{
	2025: {
		{time.January, 1},    // New Year's Day
		{time.January, 20},   // MLK Day
		{time.February, 17},  // Presidents' Day
		{time.April, 18},     // Good Friday
		{time.May, 26},       // Memorial Day
		{time.June, 19},      // Juneteenth
		{time.July, 4},       // Independence Day
		{time.September, 1},  // Labor Day
		{time.November, 27},  // Thanksgiving
		{time.December, 25},  // Christmas
	},
	2026: {
		{time.January, 1},    // New Year's Day
		{time.January, 19},   // MLK Day
		{time.February, 16},  // Presidents' Day
		{time.April, 3},      // Good Friday
		{time.May, 25},       // Memorial Day
		{time.June, 19},      // Juneteenth
		{time.July, 3},       // Independence Day (observed)
		{time.September, 7},  // Labor Day
		{time.November, 26},  // Thanksgiving
		{time.December, 25},  // Christmas
	},
	2027: {
		{time.January, 1},    // New Year's Day
		{time.January, 18},   // MLK Day
		{time.February, 15},  // Presidents' Day
		{time.March, 26},     // Good Friday
		{time.May, 31},       // Memorial Day
		{time.June, 18},      // Juneteenth (observed)
		{time.July, 5},       // Independence Day (observed)
		{time.September, 6},  // Labor Day
		{time.November, 25},  // Thanksgiving
		{time.December, 24},  // Christmas (observed)
	},
}

// IsHoliday reports whether the date falls on a known full-day market
// closure. Years missing from the table always report false; check
// HasHolidayData separately before trusting the result for such years.
func IsHoliday(t time.Time) bool {
	t = t.In(Eastern)
	year, month, day := t.Date()

	for _, h := range holidays[year] {
		if h.month == month && h.day == day {
			return true
		}
	}
	return false
}

// IsTradingDay reports whether the market is open on the given date
// (weekends and known holidays excluded).
func IsTradingDay(t time.Time) bool {
	t = t.In(Eastern)

	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	return !IsHoliday(t)
}

// LastTradingDayBefore returns the most recent trading day strictly before
// the given date. It scans at most 10 calendar days back; if no trading day
// is found (which would need a holiday cluster longer than any the exchange
// has ever had), the 10th day back is returned as a fail-open fallback.
func LastTradingDayBefore(t time.Time) time.Time {
	check := t.In(Eastern).AddDate(0, 0, -1)

	for i := 0; i < 10; i++ {
		if IsTradingDay(check) {
			return check
		}
		check = check.AddDate(0, 0, -1)
	}

	return check
}

// HasHolidayData reports whether the curated holiday table covers the given
// year. When it does not, IsTradingDay falls back to weekday-only detection
// and callers should surface a warning.
func HasHolidayData(year int) bool {
	_, ok := holidays[year]
	return ok
}

// StartOfDay truncates a timestamp to midnight exchange-local time.
func StartOfDay(t time.Time) time.Time {
	t = t.In(Eastern)
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, Eastern)
}
