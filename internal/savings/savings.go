// Package savings estimates the monthly cost impact of a recommendation from
// hourly on-demand prices.
package savings

import (
	"math"
	"strconv"
	"strings"

	"github.com/rightsizer/rightsizer/pkg/recommend"
	"github.com/rightsizer/rightsizer/pkg/shapes"
)

// HoursPerMonth is the industry-standard 730-hour billing month.
const HoursPerMonth = 730.0

const weekMinutes = 7 * 24 * 60

// Calculator turns action + price data into a monthly savings estimate.
type Calculator struct {
	currency string
}

// NewCalculator returns a calculator reporting in the given currency label
// ("USD" when empty).
func NewCalculator(currency string) *Calculator {
	if currency == "" {
		currency = "USD"
	}
	return &Calculator{currency: currency}
}

// Calculate estimates the monthly saving for the emitted actions. Returns nil
// when the current shape has no price or the actions carry no cost change.
func (c *Calculator) Calculate(actions []recommend.Action, current shapes.Candidate, recommended []shapes.Candidate, schedule []recommend.ScheduleWindow) *recommend.Savings {
	if current.PriceUSD <= 0 {
		return nil
	}
	currentMonthly := current.PriceUSD * HoursPerMonth

	newHourly := current.PriceUSD
	hasResize := false
	hasSchedule := false
	shutdown := false
	for _, a := range actions {
		switch a {
		case recommend.ActionShutdown:
			shutdown = true
		case recommend.ActionSchedule:
			hasSchedule = true
		case recommend.ActionSplit:
			if p := splitHourly(recommended); p > 0 {
				newHourly = p
				hasResize = true
			}
		case recommend.ActionScaleUp, recommend.ActionScaleDown, recommend.ActionChangeShape:
			if len(recommended) > 0 && recommended[0].PriceUSD > 0 {
				newHourly = recommended[0].PriceUSD
				hasResize = true
			}
		}
	}

	var estimated float64
	switch {
	case shutdown:
		estimated = 0
	case hasSchedule:
		estimated = newHourly * HoursPerMonth * activeFraction(schedule)
	case hasResize:
		estimated = newHourly * HoursPerMonth
	default:
		return nil
	}

	return &recommend.Savings{
		CurrentMonthlyUSD:   round2(currentMonthly),
		EstimatedMonthlyUSD: round2(estimated),
		SavedMonthlyUSD:     round2(currentMonthly - estimated),
		Currency:            c.currency,
	}
}

// splitHourly is the probability-weighted blended rate of a time-share split.
// Any unpriced member invalidates the blend.
func splitHourly(candidates []shapes.Candidate) float64 {
	sum := 0.0
	for _, cand := range candidates {
		if cand.PriceUSD <= 0 {
			return 0
		}
		sum += cand.PriceUSD * cand.Probability
	}
	return sum
}

// activeFraction is the share of the week the schedule keeps the resource
// running.
func activeFraction(schedule []recommend.ScheduleWindow) float64 {
	total := 0.0
	for _, w := range schedule {
		if w.IsAlwaysRun() {
			return 1
		}
		total += float64(windowMinutes(w) * len(w.Weekdays))
	}
	if total > weekMinutes {
		total = weekMinutes
	}
	return total / weekMinutes
}

// windowMinutes is the daily duration of one window, handling the midnight
// wrap (stop earlier than start).
func windowMinutes(w recommend.ScheduleWindow) int {
	start, stop := parseHHMM(w.Start), parseHHMM(w.Stop)
	d := stop - start
	if d <= 0 {
		d += 24 * 60
	}
	return d
}

func parseHHMM(s string) int {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	return h*60 + m
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
