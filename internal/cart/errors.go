package cart

import (
	"errors"
	"fmt"

	pkgerrors "github.com/agroconexion/storefront-sync/pkg/errors"
)

type Op string

const (
	OpLoad         Op = "load"
	OpSetQuantity  Op = "set_quantity"
	OpRemoveLine   Op = "remove_line"
	OpApplyCoupon  Op = "apply_coupon"
	OpRemoveCoupon Op = "remove_coupon"
	OpAddProduct   Op = "add_product"
)

var (
	ErrInvalidQuantity     = pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	ErrLineNotFound        = pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	ErrCouponCodeRequired  = pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	ErrCouponNotFound      = pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found or expired")
	ErrCouponNotApplicable = pkgerrors.New(pkgerrors.CodeValidation, "coupon does not apply to this product")
	// ErrCouponUnknown carries no code of its own; the cause decides it.
	ErrCouponUnknown = errors.New("coupon could not be applied")
)

// OpError reports a failed store operation. Kind is the domain sentinel (may be
// nil) and Err the underlying cause (may be nil).
type OpError struct {
	Op         Op
	LineID     int64
	Kind       error
	Err        error
	RolledBack bool
}

func (e *OpError) Error() string {
	prefix := fmt.Sprintf("cart %s", e.Op)
	if e.LineID != 0 {
		prefix = fmt.Sprintf("%s line %d", prefix, e.LineID)
	}
	switch {
	case e.Kind != nil && e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", prefix, e.Kind, e.Err)
	case e.Kind != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	default:
		return prefix
	}
}

func (e *OpError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// AsOpError extracts the store operation error from err, if any.
func AsOpError(err error) (*OpError, bool) {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr, true
	}
	return nil, false
}
