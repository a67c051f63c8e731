package payment

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultMinAmountCents is the smallest top-up accepted client-side (R$ 1,00).
const DefaultMinAmountCents = 100

var (
	ErrInvalidAmount = errors.New("payment: invalid amount")
	ErrAmountTooLow  = errors.New("payment: amount below minimum")
)

// ParseAmount turns a typed amount in reais into centavos. It accepts
// "10", "10,5", "10,50", "10.50", "R$ 1.234,56" and ",50". When a comma is
// present it is the decimal separator and dots group thousands; otherwise a
// single dot is the decimal separator.
func ParseAmount(s string) (int64, error) {
	in := s
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimPrefix(s, "R$"))
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if (whole == "" && !hasFrac) || (hasFrac && frac == "") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, in)
	}
	if !digits(whole) || !digits(frac) || len(frac) > 2 || len(whole) > 12 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, in)
	}

	var reais int64
	if whole != "" {
		v, err := strconv.ParseInt(whole, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, in)
		}
		reais = v
	}

	var cents int64
	switch len(frac) {
	case 1:
		cents = int64(frac[0]-'0') * 10
	case 2:
		cents = int64(frac[0]-'0')*10 + int64(frac[1]-'0')
	}

	total := reais*100 + cents
	if total <= 0 {
		return 0, fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	return total, nil
}

// CheckMinimum rejects amounts below minCents.
func CheckMinimum(cents, minCents int64) error {
	if cents < minCents {
		return fmt.Errorf("%w: %s is below %s", ErrAmountTooLow, FormatCents(cents), FormatCents(minCents))
	}
	return nil
}

// FormatCents renders centavos the way Brazilian users read money.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}

	whole := strconv.FormatInt(cents/100, 10)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%sR$ %s,%02d", sign, b.String(), cents%100)
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
