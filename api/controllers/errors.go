package controllers

import (
	"errors"
	"net/http"

	"github.com/agroconexion/storefront-sync/api/responses"
	"github.com/agroconexion/storefront-sync/internal/cart"
	checkoutsvc "github.com/agroconexion/storefront-sync/internal/checkout"
	"github.com/agroconexion/storefront-sync/internal/coordinator"
	"github.com/agroconexion/storefront-sync/internal/i18n"
	"github.com/agroconexion/storefront-sync/internal/notifications"
	pkgerrors "github.com/agroconexion/storefront-sync/pkg/errors"
	"github.com/agroconexion/storefront-sync/pkg/logger"
)

var sentinelKeys = []struct {
	err error
	key string
}{
	{cart.ErrInvalidQuantity, i18n.KeyQuantityInvalid},
	{cart.ErrLineNotFound, i18n.KeyLineNotFound},
	{cart.ErrCouponCodeRequired, i18n.KeyCouponRequired},
	{cart.ErrCouponNotFound, i18n.KeyCouponNotFound},
	{cart.ErrCouponNotApplicable, i18n.KeyCouponNotApplicable},
	{coordinator.ErrLineBusy, i18n.KeyLineBusy},
	{checkoutsvc.ErrEmptyCart, i18n.KeyCartEmpty},
	{notifications.ErrNotificationNotFound, i18n.KeyNotificationNotFound},
}

var opKeys = map[cart.Op]string{
	cart.OpLoad:        i18n.KeyCartLoadFailed,
	cart.OpSetQuantity: i18n.KeyCartUpdateFailed,
	cart.OpRemoveLine:  i18n.KeyRemoveFailed,
	cart.OpAddProduct:  i18n.KeyCartUpdateFailed,
	cart.OpApplyCoupon: i18n.KeyCouponFailed,
}

// MessageKey picks the user-facing message key for err. Domain sentinels win
// over the failed operation, which wins over the error code.
func MessageKey(err error) string {
	if err == nil {
		return ""
	}
	for _, s := range sentinelKeys {
		if errors.Is(err, s.err) {
			return s.key
		}
	}
	opErr, isOp := cart.AsOpError(err)
	if pkgerrors.IsUnauthorized(err) {
		if isOp && opErr.Op == cart.OpLoad {
			return i18n.KeyCartUnauthorized
		}
		return i18n.KeyUnauthorized
	}
	if errors.Is(err, cart.ErrCouponUnknown) {
		return i18n.KeyCouponFailed
	}
	if isOp {
		if key, ok := opKeys[opErr.Op]; ok {
			return key
		}
	}
	return ""
}

func writeError(w http.ResponseWriter, r *http.Request, logg *logger.Logger, err error) {
	responses.WriteErrorKey(r.Context(), logg, w, err, MessageKey(err))
}
