package fees

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value stored in minor units.
type Money = int64

// Method identifies the payment rail a fee applies to.
type Method string

const (
	MethodCard Method = "card"
	MethodACH  Method = "ach"
)

var (
	// ErrUnknownMethod is returned when a schedule has no entry for the requested method.
	ErrUnknownMethod = errors.New("fees: unknown payment method")
	// ErrInvalidSchedule is returned by Schedule.Validate.
	ErrInvalidSchedule = errors.New("fees: invalid schedule")
)

var hundred = decimal.NewFromInt(100)

// MethodFee is the fee rule for a single payment rail. Percentage is a whole-number
// percent (5 means 5%). MaxFeeCents, when set, bounds the fee from above.
type MethodFee struct {
	Percentage  float64 `json:"percentage"`
	FixedCents  Money   `json:"fixedCents"`
	MaxFeeCents *Money  `json:"maxFeeCents,omitempty"`
}

// Schedule maps each supported method to its fee rule.
type Schedule map[Method]MethodFee

// Breakdown is the result of a fee computation.
type Breakdown struct {
	Amount            Money   `json:"amount"`
	FeeAmount         Money   `json:"feeAmount"`
	NetAmount         Money   `json:"netAmount"`
	TotalWithCoverage Money   `json:"totalWithCoverage"`
	CoverageFeeAmount Money   `json:"coverageFeeAmount"`
	FeePercentage     float64 `json:"feePercentage"`
	FixedFee          Money   `json:"fixedFee"`
	Capped            bool    `json:"capped"`
}

// Cap returns a pointer suitable for MethodFee.MaxFeeCents.
func Cap(cents Money) *Money {
	return &cents
}

// DefaultSchedule returns a copy of the platform-wide schedule: card 5% uncapped,
// ACH 1% capped at $5.
func DefaultSchedule() Schedule {
	return Schedule{
		MethodCard: {Percentage: 5},
		MethodACH:  {Percentage: 1, MaxFeeCents: Cap(500)},
	}
}

// ParseMethod normalises user input into a Method.
func ParseMethod(value string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "card", "credit_card", "debit_card":
		return MethodCard, nil
	case "ach", "bank_account", "us_bank_account":
		return MethodACH, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, value)
	}
}

// Validate rejects negative values and percentages of 100 or more.
func (s Schedule) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidSchedule)
	}
	for method, fee := range s {
		if fee.Percentage < 0 || fee.Percentage >= 100 {
			return fmt.Errorf("%w: %s percentage %v out of range", ErrInvalidSchedule, method, fee.Percentage)
		}
		if fee.FixedCents < 0 {
			return fmt.Errorf("%w: %s fixed fee negative", ErrInvalidSchedule, method)
		}
		if fee.MaxFeeCents != nil && *fee.MaxFeeCents < 0 {
			return fmt.Errorf("%w: %s cap negative", ErrInvalidSchedule, method)
		}
	}
	return nil
}

// For returns the fee rule for method.
func (s Schedule) For(method Method) (MethodFee, error) {
	fee, ok := s[method]
	if !ok {
		return MethodFee{}, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	return fee, nil
}

// nominal is the uncapped fee: ceil(amount * pct / 100) + fixed.
func (f MethodFee) nominal(amount Money) Money {
	pct := decimal.NewFromInt(amount).Mul(decimal.NewFromFloat(f.Percentage)).Div(hundred).Ceil()
	return pct.IntPart() + f.FixedCents
}

// Fee applies the cap to the nominal fee.
func (f MethodFee) Fee(amount Money) (Money, bool) {
	raw := f.nominal(amount)
	if f.MaxFeeCents != nil && raw > *f.MaxFeeCents {
		return *f.MaxFeeCents, true
	}
	return raw, false
}

// GrossUp returns the smallest total whose net after fees is the requested amount.
func (f MethodFee) GrossUp(amount Money) Money {
	// total = ceil((amount + fixed) * 100 / (100 - pct))
	num := decimal.NewFromInt(amount + f.FixedCents).Mul(hundred)
	den := hundred.Sub(decimal.NewFromFloat(f.Percentage))
	total := num.Div(den).Ceil().IntPart()
	if f.MaxFeeCents != nil && f.nominal(total) > *f.MaxFeeCents {
		total = amount + *f.MaxFeeCents
	}
	return total
}

// CalculateFee computes the processing fee deducted from amount. The caller is expected
// to reject non-positive amounts.
func CalculateFee(amount Money, method Method, schedule Schedule) (Breakdown, error) {
	rule, err := schedule.For(method)
	if err != nil {
		return Breakdown{}, err
	}
	return breakdown(amount, rule), nil
}

// CalculateTotalWithCoverage computes the charge needed for the organisation to net
// amount after fees. The returned Breakdown carries the fee on the base amount as well
// as the covering total.
func CalculateTotalWithCoverage(amount Money, method Method, schedule Schedule) (Breakdown, error) {
	return CalculateFee(amount, method, schedule)
}

// FeeDescription returns the human-readable description of a method's fee rule, or an
// empty string when the schedule has no such method.
func FeeDescription(method Method, schedule Schedule) string {
	rule, err := schedule.For(method)
	if err != nil {
		return ""
	}
	return rule.Description()
}

// Description renders the rule as e.g. "2.9% + $0.30 processing fee (max $5)".
func (f MethodFee) Description() string {
	var b strings.Builder
	b.WriteString(decimal.NewFromFloat(f.Percentage).String())
	b.WriteString("%")
	if f.FixedCents > 0 {
		b.WriteString(" + ")
		b.WriteString(shortDollars(f.FixedCents, true))
	}
	b.WriteString(" processing fee")
	if f.MaxFeeCents != nil {
		b.WriteString(" (max ")
		b.WriteString(shortDollars(*f.MaxFeeCents, false))
		b.WriteString(")")
	}
	return b.String()
}

func breakdown(amount Money, rule MethodFee) Breakdown {
	fee, capped := rule.Fee(amount)
	total := rule.GrossUp(amount)
	return Breakdown{
		Amount:            amount,
		FeeAmount:         fee,
		NetAmount:         amount - fee,
		TotalWithCoverage: total,
		CoverageFeeAmount: total - amount,
		FeePercentage:     rule.Percentage,
		FixedFee:          rule.FixedCents,
		Capped:            capped,
	}
}

// shortDollars renders whole-dollar amounts without cents unless forced.
func shortDollars(cents Money, forceCents bool) string {
	d := decimal.New(cents, -2)
	if !forceCents && cents%100 == 0 {
		return "$" + d.StringFixed(0)
	}
	return "$" + d.StringFixed(2)
}
