package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/agroconexion/storefront-sync/internal/backend"
	"github.com/agroconexion/storefront-sync/internal/cart"
	"github.com/agroconexion/storefront-sync/internal/events"
	"github.com/agroconexion/storefront-sync/pkg/checkout"
	"github.com/agroconexion/storefront-sync/pkg/enums"
	pkgerrors "github.com/agroconexion/storefront-sync/pkg/errors"
	"github.com/agroconexion/storefront-sync/pkg/logger"
)

var ErrEmptyCart = pkgerrors.New(pkgerrors.CodeValidation, "cart contains no items")

type invoiceCreator interface {
	CreateInvoice(ctx context.Context, req backend.CreateInvoiceRequest) (backend.Invoice, error)
	InvoiceFromCart(ctx context.Context, req backend.InvoiceFromCartRequest) (backend.Invoice, error)
}

type cartSource interface {
	Snapshot() cart.Snapshot
	Clear(ctx context.Context)
}

// Service invoices a single product or the whole cart.
type Service interface {
	BuyProduct(ctx context.Context, input BuyInput) (backend.Invoice, error)
	CheckoutCart(ctx context.Context, method enums.PaymentMethod) (backend.Invoice, error)
}

// BuyInput captures a "buy now" request for one product.
type BuyInput struct {
	ProductID  int64
	Quantity   int
	Method     enums.PaymentMethod
	CouponCode string
}

type service struct {
	invoices invoiceCreator
	cart     cartSource
	events   events.Publisher
	logg     *logger.Logger
}

// NewService builds the checkout service.
func NewService(invoices invoiceCreator, cartSrc cartSource, publisher events.Publisher, logg *logger.Logger) (Service, error) {
	if invoices == nil {
		return nil, fmt.Errorf("invoice creator required")
	}
	if cartSrc == nil {
		return nil, fmt.Errorf("cart source required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		invoices: invoices,
		cart:     cartSrc,
		events:   publisher,
		logg:     logg,
	}, nil
}

func (s *service) BuyProduct(ctx context.Context, input BuyInput) (backend.Invoice, error) {
	ctx = s.logg.WithProductID(s.logg.WithOperation(ctx, "checkout.buy_product"), input.ProductID)
	if !input.Method.IsValid() {
		return backend.Invoice{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment method %q", input.Method))
	}
	if err := checkout.ValidateItems([]checkout.ItemInput{{ProductID: input.ProductID, Quantity: input.Quantity}}); err != nil {
		return backend.Invoice{}, err
	}

	item := backend.InvoiceItem{ProductID: input.ProductID, Quantity: input.Quantity}
	if code := strings.TrimSpace(input.CouponCode); code != "" {
		item.Coupon = &backend.InvoiceCoupon{Code: code}
	}
	invoice, err := s.invoices.CreateInvoice(ctx, backend.CreateInvoiceRequest{
		Method: input.Method.String(),
		Items:  []backend.InvoiceItem{item},
	})
	if err != nil {
		s.logg.Error(ctx, "checkout.buy_product.failed", err)
		return backend.Invoice{}, err
	}

	s.logg.Info(s.logg.WithField(ctx, "invoice_id", invoice.ID), "checkout.buy_product.created")
	return invoice, nil
}

// CheckoutCart bills the server-side cart, carrying the locally applied
// coupons, then clears the local snapshot.
func (s *service) CheckoutCart(ctx context.Context, method enums.PaymentMethod) (backend.Invoice, error) {
	ctx = s.logg.WithOperation(ctx, "checkout.cart")
	if !method.IsValid() {
		return backend.Invoice{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment method %q", method))
	}

	snap := s.cart.Snapshot()
	if len(snap.Lines) == 0 {
		return backend.Invoice{}, ErrEmptyCart
	}
	items := make([]checkout.ItemInput, 0, len(snap.Lines))
	var coupons []backend.LineCoupon
	for _, line := range snap.Lines {
		items = append(items, checkout.ItemInput{ProductID: line.ProductID, Quantity: line.Quantity})
		if line.AppliedCoupon != nil {
			coupons = append(coupons, backend.LineCoupon{ProductID: line.ProductID, Code: line.AppliedCoupon.Code})
		}
	}
	if err := checkout.ValidateItems(items); err != nil {
		return backend.Invoice{}, err
	}

	invoice, err := s.invoices.InvoiceFromCart(ctx, backend.InvoiceFromCartRequest{
		Method:  method.String(),
		Coupons: coupons,
	})
	if err != nil {
		s.logg.Error(ctx, "checkout.cart.failed", err)
		return backend.Invoice{}, err
	}

	s.cart.Clear(ctx)
	if s.events != nil {
		s.events.Publish(events.TopicCartUpdated, "checkout")
	}
	s.logg.Info(s.logg.WithField(ctx, "invoice_id", invoice.ID), "checkout.cart.created")
	return invoice, nil
}
