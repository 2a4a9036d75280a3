// Package pricing computes line and cart prices. Offer discounts are applied
// before coupon discounts and no price goes below zero.
package pricing

import (
	"github.com/agroconexion/storefront-sync/pkg/enums"
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places kept on effective prices.
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// Coupon is a validated discount attached to a single line.
type Coupon struct {
	Code  string
	Value decimal.Decimal
	Type  enums.DiscountType
}

// Item is the pricing view of a cart line.
type Item struct {
	UnitPrice    decimal.Decimal
	Quantity     int
	OfferPercent decimal.NullDecimal
	Coupon       *Coupon
}

// Totals aggregates the priced lines of a snapshot.
type Totals struct {
	TotalItems    int             `json:"total_items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	TotalPrice    decimal.Decimal `json:"total_price"`
}

// EffectivePrice returns the unit price after the offer and then the coupon.
func EffectivePrice(item Item) decimal.Decimal {
	price := item.UnitPrice
	if item.OfferPercent.Valid {
		pct := clampPercent(item.OfferPercent.Decimal)
		price = price.Sub(price.Mul(pct).Div(hundred))
	}
	if item.Coupon != nil {
		price = applyCoupon(price, *item.Coupon)
	}
	if price.IsNegative() {
		return decimal.Zero
	}
	return price.Round(MoneyPlaces)
}

func applyCoupon(price decimal.Decimal, coupon Coupon) decimal.Decimal {
	switch coupon.Type {
	case enums.DiscountTypePercentage:
		pct := clampPercent(coupon.Value)
		return price.Sub(price.Mul(pct).Div(hundred))
	case enums.DiscountTypeFixed:
		if coupon.Value.IsNegative() {
			return price
		}
		return price.Sub(coupon.Value)
	default:
		return price
	}
}

func clampPercent(pct decimal.Decimal) decimal.Decimal {
	if pct.IsNegative() {
		return decimal.Zero
	}
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}

// LineSubtotal is the effective price times quantity.
func LineSubtotal(item Item) decimal.Decimal {
	return EffectivePrice(item).Mul(decimal.NewFromInt(int64(item.Quantity)))
}

// SnapshotTotals aggregates a snapshot. The subtotal is at original unit prices.
func SnapshotTotals(items []Item) Totals {
	totals := Totals{
		Subtotal:   decimal.Zero,
		TotalPrice: decimal.Zero,
	}
	for _, item := range items {
		qty := decimal.NewFromInt(int64(item.Quantity))
		totals.TotalItems += item.Quantity
		totals.Subtotal = totals.Subtotal.Add(item.UnitPrice.Mul(qty))
		totals.TotalPrice = totals.TotalPrice.Add(LineSubtotal(item))
	}
	totals.TotalDiscount = totals.Subtotal.Sub(totals.TotalPrice)
	return totals
}
