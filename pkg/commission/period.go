package commission

import (
	"time"

	"github.com/mcclellann/agencyCRM/pkg/models"
	"github.com/shopspring/decimal"
)

// Bounds returns the inclusive calendar range of the period of the given kind containing day.
// Weeks run Sunday through Saturday.
func Bounds(kind models.PeriodKind, day time.Time) (start, end time.Time) {
	day = models.DateOf(day)
	switch kind {
	case models.PeriodWeekly:
		start = day.AddDate(0, 0, -int(day.Weekday()))
		end = start.AddDate(0, 0, 6)
	case models.PeriodMonthly:
		start = time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, -1)
	case models.PeriodYearly:
		start = time.Date(day.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		end = time.Date(day.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
	default:
		start, end = day, day
	}
	return start, end
}

// Contains reports whether date falls inside the period's inclusive range.
func Contains(p models.CommissionPeriod, date time.Time) bool {
	date = models.DateOf(date)
	return !date.Before(p.StartDate) && !date.After(p.EndDate)
}

// Ratio is current/target without clamping. With a zero target it is 1 when anything
// was earned and 0 otherwise.
func Ratio(current, target decimal.Decimal) decimal.Decimal {
	if target.IsZero() {
		if current.IsPositive() {
			return decimal.NewFromInt(1)
		}
		return decimal.Zero
	}
	return current.Div(target)
}

// Percentage is the display progress: round(current/target*100) clamped to [0, 100].
func Percentage(current, target decimal.Decimal) int64 {
	if target.IsZero() {
		if current.IsPositive() {
			return 100
		}
		return 0
	}
	pct := current.Mul(hundred).Div(target).Round(0)
	if pct.GreaterThanOrEqual(hundred) {
		return 100
	}
	if pct.IsNegative() {
		return 0
	}
	return pct.IntPart()
}

// Progress is a period together with its progress against target.
type Progress struct {
	models.CommissionPeriod
	Percentage int64           `json:"percentage"`
	Ratio      decimal.Decimal `json:"ratio"`
	OverTarget bool            `json:"over_target"`
	Remaining  decimal.Decimal `json:"remaining"`
}

// NewProgress derives the display figures for p.
func NewProgress(p models.CommissionPeriod) Progress {
	remaining := p.Target.Sub(p.Current)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return Progress{
		CommissionPeriod: p,
		Percentage:       Percentage(p.Current, p.Target),
		Ratio:            Ratio(p.Current, p.Target),
		OverTarget:       p.Target.IsPositive() && p.Current.GreaterThan(p.Target),
		Remaining:        remaining,
	}
}
