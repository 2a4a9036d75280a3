package enums

import (
	"fmt"
	"strings"
)

// DiscountType is how a coupon's value is applied to a line price.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

var validDiscountTypes = []DiscountType{
	DiscountTypePercentage,
	DiscountTypeFixed,
}

func (d DiscountType) String() string {
	return string(d)
}

// IsValid checks whether the value matches a supported discount type.
func (d DiscountType) IsValid() bool {
	for _, candidate := range validDiscountTypes {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDiscountType normalizes backend values such as "Percentage".
func ParseDiscountType(value string) (DiscountType, error) {
	normalized := DiscountType(strings.ToLower(strings.TrimSpace(value)))
	if normalized.IsValid() {
		return normalized, nil
	}
	return "", fmt.Errorf("invalid discount type %q", value)
}
