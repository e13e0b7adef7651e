package domain

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Money is a monetary amount in US dollar cents.
//
// Fine estimates arrive from the vision model in a variety of loose forms
// ("$5,000", "5000", 5000.0); ParseMoney normalizes them once at ingestion so
// the rest of the system only ever deals with a structured amount.
type Money int64

// usd renders amounts with US grouping ("1,234,567").
var usd = message.NewPrinter(language.AmericanEnglish)

// NewMoneyFromDollars creates a Money value from whole dollars.
func NewMoneyFromDollars(dollars int64) Money {
	return Money(dollars * 100)
}

// Cents returns the amount in cents.
func (m Money) Cents() int64 {
	return int64(m)
}

// Dollars returns the amount in whole dollars, truncating cents.
func (m Money) Dollars() int64 {
	return int64(m) / 100
}

// String formats the amount as "$5,000". Fine estimates are whole-dollar
// figures, so cents are not rendered.
func (m Money) String() string {
	return usd.Sprintf("$%v", number.Decimal(m.Dollars()))
}

// ParseMoney parses a loose monetary string such as "$5,000", "5000" or
// "5000.00" into a Money value. Returns an error for anything that is not a
// recognizable dollar figure.
func ParseMoney(s string) (Money, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return 0, fmt.Errorf("parse money: empty amount")
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse money %q: %w", s, err)
	}
	if f < 0 {
		return 0, fmt.Errorf("parse money %q: negative amount", s)
	}
	return Money(f * 100), nil
}
