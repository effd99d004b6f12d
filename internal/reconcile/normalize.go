package reconcile

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseError is returned when a string holds no usable numeric content
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %q as a number: %s", e.Input, e.Reason)
}

var (
	currencyPattern = regexp.MustCompile(`(?i)(rs\.?|inr|usd|eur|gbp|[$£€₹¥])`)
	numberPattern   = regexp.MustCompile(`^\d+(\.\d*)?$|^\.\d+$`)
)

// digitLookalikes maps characters OCR commonly emits in place of digits
var digitLookalikes = map[rune]rune{
	'l': '1',
	'I': '1',
	'O': '0',
	'o': '0',
}

// ParseAmount converts a free-text amount such as "₹ 1,00,000.50/-" or "$l2O.00"
// into an exact decimal
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, &ParseError{Input: raw, Reason: "empty"}
	}

	s = strings.TrimSuffix(s, "/-")
	s = currencyPattern.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == ',' {
			return -1
		}
		return r
	}, s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	switch {
	case strings.HasPrefix(s, "-"):
		negative = !negative
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	s = fixDigitLookalikes(s)
	if !numberPattern.MatchString(s) {
		return decimal.Zero, &ParseError{Input: raw, Reason: "no numeric content"}
	}

	s = strings.TrimSuffix(s, ".")
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ParseError{Input: raw, Reason: err.Error()}
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// fixDigitLookalikes rewrites l/I/O/o only where they touch a digit, repeating
// until stable so runs like "1OO" become "100"
func fixDigitLookalikes(s string) string {
	runes := []rune(s)
	for changed := true; changed; {
		changed = false
		for i, r := range runes {
			digit, ok := digitLookalikes[r]
			if !ok {
				continue
			}
			if adjacentDigit(runes, i) {
				runes[i] = digit
				changed = true
			}
		}
	}
	return string(runes)
}

func adjacentDigit(runes []rune, i int) bool {
	if i > 0 && isNumericContext(runes[i-1]) {
		return true
	}
	return i+1 < len(runes) && isNumericContext(runes[i+1])
}

func isNumericContext(r rune) bool {
	return r >= '0' && r <= '9'
}

// FormatAmount renders d with two decimals, thousands separators and an optional
// currency symbol. ParseAmount(FormatAmount(d, sym)) == d.Round(2).
func FormatAmount(d decimal.Decimal, symbol string) string {
	fixed := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}

	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	return sign + symbol + grouped.String() + "." + frac
}
