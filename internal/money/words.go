package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

var ones = []string{
	"", "One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine",
	"Ten", "Eleven", "Twelve", "Thirteen", "Fourteen", "Fifteen", "Sixteen",
	"Seventeen", "Eighteen", "Nineteen",
}

var tens = []string{
	"", "", "Twenty", "Thirty", "Forty", "Fifty", "Sixty", "Seventy", "Eighty", "Ninety",
}

type unitNames struct {
	major string
	minor string
}

var unitWords = map[string]unitNames{
	"INR": {major: "Rupees", minor: "Paise"},
	"USD": {major: "Dollars", minor: "Cents"},
	"EUR": {major: "Euros", minor: "Cents"},
	"GBP": {major: "Pounds", minor: "Pence"},
	"AED": {major: "Dirhams", minor: "Fils"},
	"SGD": {major: "Singapore Dollars", minor: "Cents"},
}

// AmountInWords spells out amount for the totals line of a printed
// quotation, e.g. "Rupees Twenty Four Lakh Forty Four Thousand Only".
// INR amounts use lakh and crore; every other currency uses the Western scale.
// Amounts with more than 18 integer digits are not spelled and yield "".
func AmountInWords(amount decimal.Decimal, currencyCode string) string {
	if !Bounded(amount, 18) {
		return ""
	}
	iso := Canonical(currencyCode)
	names, ok := unitWords[iso]
	if !ok {
		names = unitNames{major: iso, minor: "Cents"}
		if iso == "" {
			names.major = "Units"
		}
	}

	rounded := amount.Round(2)
	prefix := ""
	if rounded.IsNegative() {
		prefix = "Minus "
		rounded = rounded.Abs()
	}
	major := rounded.Truncate(0).IntPart()
	minor := rounded.Sub(rounded.Truncate(0)).Shift(2).IntPart()

	spell := westernWords
	if iso == "INR" {
		spell = indianWords
	}

	words := spell(major)
	if words == "" {
		words = "Zero"
	}
	out := prefix + names.major + " " + words
	if minor > 0 {
		out += " and " + under100(minor) + " " + names.minor
	}
	return out + " Only"
}

func indianWords(n int64) string {
	if n == 0 {
		return ""
	}
	var parts []string
	if n >= 10000000 {
		parts = append(parts, indianWords(n/10000000)+" Crore")
		n %= 10000000
	}
	if n >= 100000 {
		parts = append(parts, under100(n/100000)+" Lakh")
		n %= 100000
	}
	if n >= 1000 {
		parts = append(parts, under100(n/1000)+" Thousand")
		n %= 1000
	}
	if rest := under1000(n); rest != "" {
		parts = append(parts, rest)
	}
	return strings.Join(parts, " ")
}

func westernWords(n int64) string {
	if n == 0 {
		return ""
	}
	scales := []struct {
		value int64
		name  string
	}{
		{1_000_000_000_000, "Trillion"},
		{1_000_000_000, "Billion"},
		{1_000_000, "Million"},
		{1_000, "Thousand"},
	}
	var parts []string
	for _, s := range scales {
		if n >= s.value {
			parts = append(parts, westernWords(n/s.value)+" "+s.name)
			n %= s.value
		}
	}
	if rest := under1000(n); rest != "" {
		parts = append(parts, rest)
	}
	return strings.Join(parts, " ")
}

func under1000(n int64) string {
	if n >= 100 {
		s := ones[n/100] + " Hundred"
		if n%100 > 0 {
			s += " " + under100(n%100)
		}
		return s
	}
	return under100(n)
}

func under100(n int64) string {
	if n < 20 {
		return ones[n]
	}
	s := tens[n/10]
	if n%10 > 0 {
		s += " " + ones[n%10]
	}
	return s
}
