// Package money renders monetary amounts for display.
//
// Formatting never fails: unknown or malformed currency codes fall back to the
// default locale so that display can never block a business workflow.
package money

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
)

// DefaultCurrency is used when a quotation carries no currency code.
const DefaultCurrency = "INR"

// MaxScale is the most fractional digits an input amount may be written with.
const MaxScale = 18

// displayDigits bounds the integer digits Format expands in full.
const displayDigits = 40

// Bounded reports whether d is written with at most MaxScale fractional
// digits and at most intDigits integer digits. It only inspects the exponent
// and coefficient length, so it is safe on untrusted input before any
// comparison or rounding that would expand d.
func Bounded(d decimal.Decimal, intDigits int) bool {
	exp := int64(d.Exponent())
	if exp < -MaxScale {
		return false
	}
	if d.IsZero() {
		return true
	}
	return int64(d.NumDigits())+exp <= int64(intDigits)
}

type grouping int

const (
	groupWestern grouping = iota
	groupIndian
)

// Locale describes how amounts in one currency are written.
type Locale struct {
	Tag        language.Tag
	Prefix     string
	Suffix     string
	GroupSep   string
	DecimalSep string
	grouping   grouping
}

// Options tweaks Format. The zero value renders two fractional digits.
type Options struct {
	WholeUnits bool
}

var defaultLocale = Locale{
	Tag:        language.AmericanEnglish,
	GroupSep:   ",",
	DecimalSep: ".",
	grouping:   groupWestern,
}

var locales = map[string]Locale{
	"INR": {Tag: language.MustParse("en-IN"), Prefix: "₹", GroupSep: ",", DecimalSep: ".", grouping: groupIndian},
	"USD": {Tag: language.AmericanEnglish, Prefix: "$", GroupSep: ",", DecimalSep: ".", grouping: groupWestern},
	"GBP": {Tag: language.BritishEnglish, Prefix: "£", GroupSep: ",", DecimalSep: ".", grouping: groupWestern},
	"EUR": {Tag: language.German, Suffix: " €", GroupSep: ".", DecimalSep: ",", grouping: groupWestern},
	"AED": {Tag: language.MustParse("en-AE"), Prefix: "AED ", GroupSep: ",", DecimalSep: ".", grouping: groupWestern},
	"SGD": {Tag: language.MustParse("en-SG"), Prefix: "S$", GroupSep: ",", DecimalSep: ".", grouping: groupWestern},
	"JPY": {Tag: language.Japanese, Prefix: "¥", GroupSep: ",", DecimalSep: ".", grouping: groupWestern},
}

// Canonical returns the upper-cased ISO 4217 code for code, or "" when code
// is not a recognised currency.
func Canonical(code string) string {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return ""
	}
	return unit.String()
}

// LocaleFor returns the locale conventionally associated with the currency.
func LocaleFor(code string) Locale {
	iso := Canonical(code)
	if loc, ok := locales[iso]; ok {
		return loc
	}
	loc := defaultLocale
	if iso != "" {
		loc.Prefix = iso + " "
	}
	return loc
}

// Format renders amount with two fractional digits using the locale of currencyCode.
func Format(amount decimal.Decimal, currencyCode string) string {
	return FormatWith(amount, currencyCode, Options{})
}

// FormatWith renders amount using the locale of currencyCode.
func FormatWith(amount decimal.Decimal, currencyCode string, opts Options) string {
	loc := LocaleFor(currencyCode)
	if !Bounded(amount, displayDigits) {
		return scientific(amount, loc)
	}

	places := int32(2)
	if opts.WholeUnits {
		places = 0
	}
	rounded := amount.Round(places)

	digits := rounded.Abs().StringFixed(places)
	intPart, fracPart, _ := strings.Cut(digits, ".")

	var b strings.Builder
	if rounded.IsNegative() {
		b.WriteByte('-')
	}
	b.WriteString(loc.Prefix)
	b.WriteString(group(intPart, loc.GroupSep, loc.grouping))
	if places > 0 {
		b.WriteString(loc.DecimalSep)
		b.WriteString(fracPart)
	}
	b.WriteString(loc.Suffix)
	return b.String()
}

// Plain renders amount with Western grouping and no currency marker. Used
// for spreadsheet cells and machine-readable exports.
func Plain(amount decimal.Decimal) string {
	if !Bounded(amount, displayDigits) {
		return scientific(amount, Locale{})
	}
	rounded := amount.Round(2)
	intPart, fracPart, _ := strings.Cut(rounded.Abs().StringFixed(2), ".")
	s := group(intPart, ",", groupWestern) + "." + fracPart
	if rounded.IsNegative() {
		s = "-" + s
	}
	return s
}

// scientific writes amounts too large or too finely scaled to expand.
func scientific(amount decimal.Decimal, loc Locale) string {
	coef := amount.Coefficient()
	var b strings.Builder
	if coef.Sign() < 0 {
		b.WriteByte('-')
		coef.Neg(coef)
	}
	b.WriteString(loc.Prefix)
	b.WriteString(coef.String())
	b.WriteByte('e')
	b.WriteString(strconv.FormatInt(int64(amount.Exponent()), 10))
	b.WriteString(loc.Suffix)
	return b.String()
}

func group(digits, sep string, style grouping) string {
	n := len(digits)
	if n <= 3 {
		return digits
	}
	// the last three digits stay together; the rest go in threes, or pairs
	// for Indian grouping
	size := 3
	if style == groupIndian {
		size = 2
	}
	head, tail := digits[:n-3], digits[n-3:]
	first := len(head) % size
	if first == 0 {
		first = size
	}

	var b strings.Builder
	b.Grow(n + (n/size+1)*len(sep))
	b.WriteString(head[:first])
	for i := first; i < len(head); i += size {
		b.WriteString(sep)
		b.WriteString(head[i : i+size])
	}
	b.WriteString(sep)
	b.WriteString(tail)
	return b.String()
}
