package money

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// within fails the test when fn does not return before d.
func within(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("did not return within %s", d)
	}
}

func TestFormatGrouping(t *testing.T) {
	cases := []struct {
		name   string
		amount string
		code   string
		want   string
	}{
		{"inr lakh grouping", "2444000", "INR", "₹24,44,000.00"},
		{"inr crore grouping", "123456789.5", "INR", "₹12,34,56,789.50"},
		{"inr small", "999", "INR", "₹999.00"},
		{"inr thousand", "1000", "INR", "₹1,000.00"},
		{"inr odd head", "12345678", "INR", "₹1,23,45,678.00"},
		{"usd odd head", "12345678", "USD", "$12,345,678.00"},
		{"usd western grouping", "2444000", "USD", "$2,444,000.00"},
		{"lower case code", "1234.5", "usd", "$1,234.50"},
		{"euro separators", "1234567.891", "EUR", "1.234.567,89 €"},
		{"zero", "0", "INR", "₹0.00"},
		{"negative credit", "-1000", "INR", "-₹1,000.00"},
		{"half rounds away from zero", "10.005", "USD", "$10.01"},
		{"known iso without locale", "1234.5", "CHF", "CHF 1,234.50"},
		{"unknown code falls back", "1234.5", "NOPE", "1,234.50"},
		{"empty code falls back", "1234.5", "", "1,234.50"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Format(decimal.RequireFromString(tc.amount), tc.code)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatWholeUnits(t *testing.T) {
	got := FormatWith(decimal.RequireFromString("2444000.49"), "INR", Options{WholeUnits: true})
	assert.Equal(t, "₹24,44,000", got)

	got = FormatWith(decimal.RequireFromString("999.5"), "USD", Options{WholeUnits: true})
	assert.Equal(t, "$1,000", got)
}

func TestFormatTinyNegativeRoundsToZero(t *testing.T) {
	assert.Equal(t, "$0.00", Format(decimal.RequireFromString("-0.001"), "USD"))
}

func TestPlain(t *testing.T) {
	assert.Equal(t, "2,444,000.00", Plain(decimal.NewFromInt(2444000)))
	assert.Equal(t, "-12.35", Plain(decimal.RequireFromString("-12.345")))
}

func TestLocaleFor(t *testing.T) {
	assert.Equal(t, "en-IN", LocaleFor("INR").Tag.String())
	assert.Equal(t, "en-US", LocaleFor("XYZ1").Tag.String())
	assert.Equal(t, "", Canonical("rupees"))
	assert.Equal(t, "INR", Canonical(" inr "))
}

func TestBounded(t *testing.T) {
	cases := []struct {
		amount string
		digits int
		want   bool
	}{
		{"0", 16, true},
		{"1000000000000000", 16, true},
		{"10000000000000000", 16, false},
		{"2444000.1234", 16, true},
		{"0.000000000000000001", 16, true},
		{"1e-19", 16, false},
		{"1e200000", 16, false},
		{"1e30000000", 40, false},
		{"-1e-3000000", 16, false},
		{"0e-3000000", 16, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Bounded(decimal.RequireFromString(tc.amount), tc.digits), tc.amount)
	}
}

func TestFormatHugeExponentReturnsPromptly(t *testing.T) {
	within(t, 2*time.Second, func() {
		assert.Equal(t, "₹1e200000", Format(decimal.RequireFromString("1e200000"), "INR"))
		assert.Equal(t, "-$15e-3000000", Format(decimal.RequireFromString("-1.5e-2999999"), "USD"))
		assert.Equal(t, "1e30000000", Plain(decimal.RequireFromString("1e30000000")))
		assert.Empty(t, AmountInWords(decimal.RequireFromString("1e30000000"), "INR"))
	})
}

func TestGroupLongDigitRun(t *testing.T) {
	digits := "1" + strings.Repeat("0", 99999)
	var out string
	within(t, 2*time.Second, func() {
		out = group(digits, ",", groupIndian)
	})
	require.True(t, strings.HasPrefix(out, "10,00,"))
	assert.True(t, strings.HasSuffix(out, ",00,000"))
	assert.Equal(t, digits, strings.ReplaceAll(out, ",", ""))
}
