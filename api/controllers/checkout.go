package controllers

import (
	"net/http"

	"github.com/agroconexion/storefront-sync/api/responses"
	"github.com/agroconexion/storefront-sync/api/validators"
	checkoutsvc "github.com/agroconexion/storefront-sync/internal/checkout"
	"github.com/agroconexion/storefront-sync/internal/i18n"
	"github.com/agroconexion/storefront-sync/pkg/enums"
	pkgerrors "github.com/agroconexion/storefront-sync/pkg/errors"
	"github.com/agroconexion/storefront-sync/pkg/logger"
)

type checkoutCartRequest struct {
	Method string `json:"method" validate:"required,oneof=efectivo tarjeta_debito"`
}

type buyProductRequest struct {
	ProductID  int64  `json:"product_id" validate:"required,gt=0"`
	Quantity   *int   `json:"quantity" validate:"required"`
	Method     string `json:"method" validate:"required,oneof=efectivo tarjeta_debito"`
	CouponCode string `json:"coupon_code"`
}

type invoiceResponse struct {
	InvoiceID int64 `json:"invoice_id"`
}

// CheckoutCart invoices the whole remote cart and clears the local snapshot.
func CheckoutCart(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutCartRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			writeCheckoutError(w, r, logg, err)
			return
		}
		method, err := enums.ParsePaymentMethod(payload.Method)
		if err != nil {
			writeCheckoutError(w, r, logg, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		invoice, err := svc.CheckoutCart(r.Context(), method)
		if err != nil {
			writeCheckoutError(w, r, logg, err)
			return
		}
		responses.WriteSuccessMessage(r.Context(), w, http.StatusCreated, invoiceResponse{InvoiceID: invoice.ID}, i18n.KeyCheckoutCreated)
	}
}

// CheckoutProduct invoices a single product ("buy now").
func CheckoutProduct(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload buyProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			writeCheckoutError(w, r, logg, err)
			return
		}
		method, err := enums.ParsePaymentMethod(payload.Method)
		if err != nil {
			writeCheckoutError(w, r, logg, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		invoice, err := svc.BuyProduct(r.Context(), checkoutsvc.BuyInput{
			ProductID:  payload.ProductID,
			Quantity:   *payload.Quantity,
			Method:     method,
			CouponCode: validators.SanitizeString(payload.CouponCode, maxCouponCodeLen),
		})
		if err != nil {
			writeCheckoutError(w, r, logg, err)
			return
		}
		responses.WriteSuccessMessage(r.Context(), w, http.StatusCreated, invoiceResponse{InvoiceID: invoice.ID}, i18n.KeyCheckoutCreated)
	}
}

func writeCheckoutError(w http.ResponseWriter, r *http.Request, logg *logger.Logger, err error) {
	key := MessageKey(err)
	if key == "" {
		switch pkgerrors.CodeOf(err) {
		case pkgerrors.CodeValidation, pkgerrors.CodeNotFound:
		default:
			key = i18n.KeyCheckoutFailed
		}
	}
	responses.WriteErrorKey(r.Context(), logg, w, err, key)
}
