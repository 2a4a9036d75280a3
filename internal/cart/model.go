package cart

import (
	"time"

	"github.com/agroconexion/storefront-sync/internal/pricing"
	"github.com/agroconexion/storefront-sync/pkg/enums"
	"github.com/shopspring/decimal"
)

// Coupon is a remotely validated discount attached to one line.
type Coupon struct {
	Code          string             `json:"code"`
	DiscountValue decimal.Decimal    `json:"discount_value"`
	DiscountType  enums.DiscountType `json:"discount_type"`
}

// Line is one cart entry. Quantity is always at least 1.
type Line struct {
	ID                   int64               `json:"id"`
	ProductID            int64               `json:"product_id"`
	Name                 string              `json:"name"`
	ImageURL             string              `json:"image_url,omitempty"`
	UnitPrice            decimal.Decimal     `json:"unit_price"`
	Quantity             int                 `json:"quantity"`
	OfferDiscountPercent decimal.NullDecimal `json:"offer_discount_percent"`
	AppliedCoupon        *Coupon             `json:"applied_coupon,omitempty"`
}

func (l Line) clone() Line {
	if l.AppliedCoupon != nil {
		c := *l.AppliedCoupon
		l.AppliedCoupon = &c
	}
	return l
}

// PricingItem returns the pricing view of the line.
func (l Line) PricingItem() pricing.Item {
	item := pricing.Item{
		UnitPrice:    l.UnitPrice,
		Quantity:     l.Quantity,
		OfferPercent: l.OfferDiscountPercent,
	}
	if l.AppliedCoupon != nil {
		item.Coupon = &pricing.Coupon{
			Code:  l.AppliedCoupon.Code,
			Value: l.AppliedCoupon.DiscountValue,
			Type:  l.AppliedCoupon.DiscountType,
		}
	}
	return item
}

func (l Line) EffectivePrice() decimal.Decimal {
	return pricing.EffectivePrice(l.PricingItem())
}

func (l Line) Subtotal() decimal.Decimal {
	return pricing.LineSubtotal(l.PricingItem())
}

// Snapshot is the cart as last known, in server order.
type Snapshot struct {
	Lines    []Line    `json:"lines"`
	LoadedAt time.Time `json:"loaded_at"`
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{LoadedAt: s.LoadedAt, Lines: make([]Line, len(s.Lines))}
	for i, line := range s.Lines {
		out.Lines[i] = line.clone()
	}
	return out
}

func (s Snapshot) indexOf(lineID int64) int {
	for i, line := range s.Lines {
		if line.ID == lineID {
			return i
		}
	}
	return -1
}

// Line returns a copy of the line with the given id.
func (s Snapshot) Line(lineID int64) (Line, bool) {
	idx := s.indexOf(lineID)
	if idx < 0 {
		return Line{}, false
	}
	return s.Lines[idx].clone(), true
}

// Totals derives the aggregate prices; they are never stored.
func (s Snapshot) Totals() pricing.Totals {
	items := make([]pricing.Item, 0, len(s.Lines))
	for _, line := range s.Lines {
		items = append(items, line.PricingItem())
	}
	return pricing.SnapshotTotals(items)
}
