package checkout

import (
	"fmt"

	pkgerrors "github.com/agroconexion/storefront-sync/pkg/errors"
)

// ItemInput describes one product about to be invoiced.
type ItemInput struct {
	ProductID int64
	Quantity  int
}

// ItemViolationDetail is returned to callers when an item cannot be invoiced.
type ItemViolationDetail struct {
	ProductID    int64  `json:"product_id"`
	RequestedQty int    `json:"requested_qty"`
	Reason       string `json:"reason"`
}

const (
	ReasonMissingProduct = "missing_product"
	ReasonQuantityFloor  = "quantity_below_one"
)

// ValidateItems ensures every item names a product and asks for at least one unit.
func ValidateItems(items []ItemInput) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "no items to invoice")
	}
	var violations []ItemViolationDetail
	for _, item := range items {
		switch {
		case item.ProductID <= 0:
			violations = append(violations, ItemViolationDetail{
				ProductID:    item.ProductID,
				RequestedQty: item.Quantity,
				Reason:       ReasonMissingProduct,
			})
		case item.Quantity < 1:
			violations = append(violations, ItemViolationDetail{
				ProductID:    item.ProductID,
				RequestedQty: item.Quantity,
				Reason:       ReasonQuantityFloor,
			})
		}
	}
	if len(violations) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%d item(s) cannot be invoiced", len(violations))).WithDetails(map[string]any{
		"violations": violations,
	})
}
