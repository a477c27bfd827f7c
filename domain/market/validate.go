package market

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const MaxItemNameLen = 100

var (
	// MinPrice and MaxPrice bound every listed or proposed price.
	MinPrice = decimal.New(1, -2) // 0.01
	MaxPrice = decimal.NewFromInt(999_999_999)

	itemNameRe = regexp.MustCompile(`^[a-zA-Z0-9\s\-'.]+$`)
)

// ValidatePrice enforces the price contract: positive, within bounds,
// at most two decimal places.
func ValidatePrice(p decimal.Decimal) error {
	if p.LessThan(MinPrice) {
		return &ValidationError{Field: "price", Reason: fmt.Sprintf("below minimum %s", MinPrice)}
	}
	if p.GreaterThan(MaxPrice) {
		return &ValidationError{Field: "price", Reason: fmt.Sprintf("above maximum %s", MaxPrice)}
	}
	if !p.Equal(p.Round(2)) {
		return &ValidationError{Field: "price", Reason: "more than two decimal places"}
	}
	return nil
}

// ParsePrice parses user-entered price text, tolerating a leading currency
// symbol and thousands separators, and validates the result.
func ParsePrice(v string) (decimal.Decimal, error) {
	v = strings.TrimSpace(strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(v), "$"), ",", ""))
	if v == "" {
		return decimal.Zero, &ValidationError{Field: "price", Reason: "empty"}
	}
	p, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: "price", Reason: "not a number"}
	}
	if err := ValidatePrice(p); err != nil {
		return decimal.Zero, err
	}
	return p, nil
}

// ValidateItemName trims and validates a catalog item name, returning the
// cleaned form.
func ValidateItemName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ValidationError{Field: "item name", Reason: "empty"}
	}
	if len(name) > MaxItemNameLen {
		return "", &ValidationError{Field: "item name", Reason: fmt.Sprintf("longer than %d characters", MaxItemNameLen)}
	}
	if !itemNameRe.MatchString(name) {
		return "", &ValidationError{Field: "item name", Reason: "contains invalid characters"}
	}
	return name, nil
}
