package payment

import (
	"fmt"
	"strings"
	"time"
)

// Interval is the billing cadence of a subscription.
type Interval string

const (
	IntervalWeekly    Interval = "weekly"
	IntervalMonthly   Interval = "monthly"
	IntervalQuarterly Interval = "quarterly"
	IntervalYearly    Interval = "yearly"
)

// ParseInterval normalises user input into an Interval.
func ParseInterval(value string) (Interval, error) {
	switch Interval(strings.ToLower(strings.TrimSpace(value))) {
	case IntervalWeekly, "week":
		return IntervalWeekly, nil
	case IntervalMonthly, "month":
		return IntervalMonthly, nil
	case IntervalQuarterly, "quarter":
		return IntervalQuarterly, nil
	case IntervalYearly, "year", "annual", "annually":
		return IntervalYearly, nil
	default:
		return "", invalid("interval", fmt.Sprintf("unsupported interval %q", value))
	}
}

func (i Interval) months() int {
	switch i {
	case IntervalMonthly:
		return 1
	case IntervalQuarterly:
		return 3
	case IntervalYearly:
		return 12
	}
	return 0
}

// AddInterval advances t by one interval. Calendar intervals clamp to the last day of
// the target month, so Jan 31 + 1 month is Feb 28 (Feb 29 in leap years).
func AddInterval(t time.Time, i Interval) time.Time {
	return PeriodEnd(t, i, 1)
}

// PeriodEnd returns the boundary n intervals after anchor. Computing from the anchor
// keeps the day of month stable: Jan 31, Feb 28, Mar 31.
func PeriodEnd(anchor time.Time, i Interval, n int) time.Time {
	if i == IntervalWeekly {
		return anchor.AddDate(0, 0, 7*n)
	}
	return addMonthsClamped(anchor, i.months()*n)
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first); day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}

func daysIn(firstOfMonth time.Time) int {
	return firstOfMonth.AddDate(0, 1, -1).Day()
}

var subscriptionTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionIncomplete: {SubscriptionActive, SubscriptionCancelled},
	SubscriptionActive:     {SubscriptionPaused, SubscriptionPastDue, SubscriptionCancelled},
	SubscriptionPaused:     {SubscriptionActive, SubscriptionCancelled},
	SubscriptionPastDue:    {SubscriptionActive, SubscriptionCancelled},
}

// CanTransition reports whether a subscription may move from one status to another.
func CanTransition(from, to SubscriptionStatus) bool {
	for _, next := range subscriptionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(sub *Subscription, to SubscriptionStatus) error {
	if !CanTransition(sub.Status, to) {
		return &ValidationError{
			Field:  "status",
			Reason: fmt.Sprintf("cannot move subscription %s from %s to %s", sub.ID, sub.Status, to),
			Err:    ErrInvalidTransition,
		}
	}
	return nil
}
