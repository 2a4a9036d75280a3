package backend

import (
	"context"
	"net/http"
)

type InvoiceCoupon struct {
	Code string `json:"code"`
}

type InvoiceItem struct {
	ProductID int64          `json:"product_id"`
	Quantity  int            `json:"quantity"`
	Coupon    *InvoiceCoupon `json:"coupon,omitempty"`
}

type CreateInvoiceRequest struct {
	Method string        `json:"method"`
	Items  []InvoiceItem `json:"items"`
}

type LineCoupon struct {
	ProductID int64  `json:"product_id"`
	Code      string `json:"code"`
}

type InvoiceFromCartRequest struct {
	Method  string       `json:"method,omitempty"`
	Coupons []LineCoupon `json:"coupons,omitempty"`
}

type Invoice struct {
	ID int64 `json:"id"`
}

func (c *Client) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (Invoice, error) {
	var out Invoice
	err := c.do(ctx, call{
		Endpoint: "POST /invoices/create/",
		Method:   http.MethodPost,
		Path:     "invoices/create/",
		Body:     req,
	}, &out)
	return out, err
}

// InvoiceFromCart bills the whole server-side cart.
func (c *Client) InvoiceFromCart(ctx context.Context, req InvoiceFromCartRequest) (Invoice, error) {
	var out Invoice
	err := c.do(ctx, call{
		Endpoint: "POST /invoices/from-cart/",
		Method:   http.MethodPost,
		Path:     "invoices/from-cart/",
		Body:     req,
	}, &out)
	return out, err
}
