package fees

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var symbols = map[string]string{
	"USD": "$",
	"CAD": "CA$",
	"AUD": "A$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"IDR": "Rp",
}

// DollarsToCents converts a major-unit amount to cents, rounding half away from zero.
func DollarsToCents(dollars float64) Money {
	return decimal.NewFromFloat(dollars).Mul(hundred).Round(0).IntPart()
}

// CentsToDollars converts cents to a major-unit amount.
func CentsToDollars(cents Money) float64 {
	f, _ := decimal.New(cents, -2).Float64()
	return f
}

// FormatCurrency renders minor units for display, e.g. FormatCurrency(1234, "USD", "en-US")
// returns "$12.34". Unknown currencies fall back to USD and unknown locales to en-US.
func FormatCurrency(cents Money, code, locale string) string {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		unit = currency.USD
	}
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.AmericanEnglish
	}
	scale, _ := currency.Standard.Rounding(unit)

	value, _ := decimal.New(cents, int32(-scale)).Abs().Float64()
	p := message.NewPrinter(tag)
	digits := p.Sprint(number.Decimal(value, number.Scale(scale)))

	symbol, ok := symbols[unit.String()]
	if !ok {
		symbol = unit.String() + " "
	}
	if cents < 0 {
		return "-" + symbol + digits
	}
	return symbol + digits
}
