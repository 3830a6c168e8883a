package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// AmountScale is the number of fractional digits carried by Amount.
const AmountScale = 2

const amountUnit = 100

// ErrInvalidAmountFormat is returned when a decimal string cannot be parsed
var ErrInvalidAmountFormat = errors.New("invalid amount format")

// Amount is a fixed-point monetary value in minor units (1 = 0.01).
type Amount int64

// NewAmount builds an Amount from whole units.
func NewAmount(units int64) Amount {
	return Amount(units * amountUnit)
}

// ParseAmount parses a non-negative decimal string with at most two fractional digits.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmountFormat)
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if !digitsOnly(whole) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmountFormat, s)
	}
	if hasFrac && (!digitsOnly(frac) || len(frac) > AmountScale) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmountFormat, s)
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmountFormat, s)
	}
	var minor int64
	if hasFrac {
		for len(frac) < AmountScale {
			frac += "0"
		}
		minor, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmountFormat, s)
		}
	}
	if units > (1<<63-1-minor)/amountUnit {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidAmountFormat, s)
	}
	return Amount(units*amountUnit + minor), nil
}

func digitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// String renders the amount with exactly two fractional digits.
func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/amountUnit, v%amountUnit)
}

// MarshalJSON encodes the amount as a decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a decimal string or a JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// UnmarshalParam lets form and query binding parse decimal strings.
func (a *Amount) UnmarshalParam(param string) error {
	v, err := ParseAmount(param)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
