package controllers

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/agroconexion/storefront-sync/api/responses"
	"github.com/agroconexion/storefront-sync/api/validators"
	"github.com/agroconexion/storefront-sync/internal/cart"
	"github.com/agroconexion/storefront-sync/internal/i18n"
	pkgerrors "github.com/agroconexion/storefront-sync/pkg/errors"
	"github.com/agroconexion/storefront-sync/pkg/logger"
)

const maxCouponCodeLen = 64

// CartReader exposes the confirmed cart snapshot.
type CartReader interface {
	Snapshot() cart.Snapshot
	Load(ctx context.Context) error
}

// CartMutator runs guarded cart mutations.
type CartMutator interface {
	SetQuantity(ctx context.Context, lineID, productID int64, quantity int) error
	RemoveLine(ctx context.Context, lineID, productID int64) error
	ApplyCoupon(ctx context.Context, lineID, productID int64, code string) (cart.Coupon, error)
	RemoveCoupon(ctx context.Context, lineID int64) error
	AddProduct(ctx context.Context, productID int64, quantity int) error
	BusyLines() []int64
}

type addItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  *int  `json:"quantity" validate:"required"`
}

type quantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type couponRequest struct {
	Code string `json:"code"`
}

type cartLineResponse struct {
	cart.Line
	EffectivePrice decimal.Decimal `json:"effective_price"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Busy           bool            `json:"busy"`
}

type cartTotalsResponse struct {
	TotalItems     int             `json:"total_items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	TotalDiscount  decimal.Decimal `json:"total_discount"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	FormattedTotal string          `json:"formatted_total,omitempty"`
}

type cartResponse struct {
	Lines       []cartLineResponse `json:"lines"`
	Totals      cartTotalsResponse `json:"totals"`
	BusyLineIDs []int64            `json:"busy_line_ids"`
	LoadedAt    *time.Time         `json:"loaded_at,omitempty"`
}

func newCartResponse(ctx context.Context, snap cart.Snapshot, busy []int64) cartResponse {
	if busy == nil {
		busy = []int64{}
	}
	resp := cartResponse{
		Lines:       make([]cartLineResponse, 0, len(snap.Lines)),
		BusyLineIDs: busy,
	}
	for _, line := range snap.Lines {
		resp.Lines = append(resp.Lines, cartLineResponse{
			Line:           line,
			EffectivePrice: line.EffectivePrice(),
			Subtotal:       line.Subtotal(),
			Busy:           slices.Contains(busy, line.ID),
		})
	}
	totals := snap.Totals()
	resp.Totals = cartTotalsResponse{
		TotalItems:    totals.TotalItems,
		Subtotal:      totals.Subtotal,
		TotalDiscount: totals.TotalDiscount,
		TotalPrice:    totals.TotalPrice,
	}
	if tr, lang := i18n.LocaleFromContext(ctx); tr != nil {
		resp.Totals.FormattedTotal = tr.FormatPrice(totals.TotalPrice, lang)
	}
	if !snap.LoadedAt.IsZero() {
		loadedAt := snap.LoadedAt
		resp.LoadedAt = &loadedAt
	}
	return resp
}

func busyLines(mutator CartMutator) []int64 {
	if mutator == nil {
		return nil
	}
	return mutator.BusyLines()
}

// CartFetch returns the last confirmed cart with derived totals.
func CartFetch(reader CartReader, mutator CartMutator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart store unavailable"))
			return
		}
		responses.WriteSuccess(w, newCartResponse(r.Context(), reader.Snapshot(), busyLines(mutator)))
	}
}

// CartReload replaces the snapshot with the backend's cart.
func CartReload(reader CartReader, mutator CartMutator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart store unavailable"))
			return
		}
		if err := reader.Load(r.Context()); err != nil {
			writeError(w, r, logg, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(r.Context(), reader.Snapshot(), busyLines(mutator)))
	}
}

// CartAddItem adds a product to the remote cart.
func CartAddItem(reader CartReader, mutator CartMutator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil || mutator == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart store unavailable"))
			return
		}

		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := mutator.AddProduct(r.Context(), payload.ProductID, *payload.Quantity); err != nil {
			writeError(w, r, logg, err)
			return
		}
		responses.WriteSuccessMessage(r.Context(), w, http.StatusCreated, newCartResponse(r.Context(), reader.Snapshot(), mutator.BusyLines()), i18n.KeyProductAdded)
	}
}

// CartSetQuantity sets the quantity of one line.
func CartSetQuantity(reader CartReader, mutator CartMutator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil || mutator == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart store unavailable"))
			return
		}

		line, err := lineFromPath(r, reader)
		if err != nil {
			writeError(w, r, logg, err)
			return
		}

		var payload quantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := mutator.SetQuantity(r.Context(), line.ID, line.ProductID, *payload.Quantity); err != nil {
			writeError(w, r, logg, err)
			return
		}
		responses.WriteSuccessMessage(r.Context(), w, http.StatusOK, newCartResponse(r.Context(), reader.Snapshot(), mutator.BusyLines()), i18n.KeyCartUpdated)
	}
}

// CartRemoveLine removes one line.
func CartRemoveLine(reader CartReader, mutator CartMutator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil || mutator == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart store unavailable"))
			return
		}

		line, err := lineFromPath(r, reader)
		if err != nil {
			writeError(w, r, logg, err)
			return
		}

		if err := mutator.RemoveLine(r.Context(), line.ID, line.ProductID); err != nil {
			writeError(w, r, logg, err)
			return
		}
		responses.WriteSuccessMessage(r.Context(), w, http.StatusOK, newCartResponse(r.Context(), reader.Snapshot(), mutator.BusyLines()), i18n.KeyProductRemoved)
	}
}

// CartApplyCoupon validates a coupon remotely and attaches it to the line.
func CartApplyCoupon(reader CartReader, mutator CartMutator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil || mutator == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart store unavailable"))
			return
		}

		line, err := lineFromPath(r, reader)
		if err != nil {
			writeError(w, r, logg, err)
			return
		}

		var payload couponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		code := validators.SanitizeString(payload.Code, maxCouponCodeLen)
		if _, err := mutator.ApplyCoupon(r.Context(), line.ID, line.ProductID, code); err != nil {
			writeError(w, r, logg, err)
			return
		}
		responses.WriteSuccessMessage(r.Context(), w, http.StatusOK, newCartResponse(r.Context(), reader.Snapshot(), mutator.BusyLines()), i18n.KeyCouponApplied)
	}
}

// CartRemoveCoupon detaches the coupon from the line.
func CartRemoveCoupon(reader CartReader, mutator CartMutator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil || mutator == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart store unavailable"))
			return
		}

		line, err := lineFromPath(r, reader)
		if err != nil {
			writeError(w, r, logg, err)
			return
		}

		if err := mutator.RemoveCoupon(r.Context(), line.ID); err != nil {
			writeError(w, r, logg, err)
			return
		}
		responses.WriteSuccessMessage(r.Context(), w, http.StatusOK, newCartResponse(r.Context(), reader.Snapshot(), mutator.BusyLines()), i18n.KeyCouponRemoved)
	}
}

func lineFromPath(r *http.Request, reader CartReader) (cart.Line, error) {
	lineID, err := parseIDParam(r, "lineId")
	if err != nil {
		return cart.Line{}, err
	}
	line, ok := reader.Snapshot().Line(lineID)
	if !ok {
		return cart.Line{}, cart.ErrLineNotFound
	}
	return line, nil
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid "+name).WithDetails(map[string]any{"field": name})
	}
	return id, nil
}
