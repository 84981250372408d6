package core

import "time"

// OccurrenceIn returns the date the rule pays out in the given month. Days
// past the end of a short month collapse onto its last day.
func (r RecurringIncome) OccurrenceIn(ym YearMonth) Date {
	return ym.ClampDay(r.DayOfMonth)
}

// ExpectedIn reports whether the rule is active and its start/end window
// covers the month.
func (r RecurringIncome) ExpectedIn(year, month int) bool {
	if !r.Active {
		return false
	}
	ym := YearMonth{Year: year, Month: month}
	if !r.StartDate.IsZero() && ym.Before(r.StartDate.YearMonth()) {
		return false
	}
	if r.EndDate != nil && r.EndDate.YearMonth().Before(ym) {
		return false
	}
	return true
}

// NextOccurrence returns the first payout on or after from's day, and false
// when the rule is inactive or has ended before then.
func (r RecurringIncome) NextOccurrence(from time.Time) (Date, bool) {
	if !r.Active {
		return Date{}, false
	}
	day := DateOf(from)
	if !r.StartDate.IsZero() && day.Before(r.StartDate.Time) {
		day = r.StartDate
	}

	ym := day.YearMonth()
	next := r.OccurrenceIn(ym)
	if next.Before(day.Time) {
		next = r.OccurrenceIn(ym.AddMonths(1))
	}
	if r.EndDate != nil && next.After(r.EndDate.Time) {
		return Date{}, false
	}
	return next, true
}
