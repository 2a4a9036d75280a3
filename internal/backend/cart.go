package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	pkgerrors "github.com/agroconexion/storefront-sync/pkg/errors"
	"github.com/shopspring/decimal"
)

type ProductImage struct {
	Image string `json:"image"`
}

type Offer struct {
	Percentage decimal.Decimal `json:"percentage"`
}

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Images      []ProductImage  `json:"images"`
	Offers      *Offer          `json:"offers"`
}

// CartItem is one entry of GET /cart/my-cart/.
type CartItem struct {
	ID       int64   `json:"id"`
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// CouponResult is the body of a successful POST /coupons/validate/.
type CouponResult struct {
	Discount decimal.Decimal `json:"discount"`
	Type     string          `json:"type" validate:"required"`
}

type addProductRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type validateCouponRequest struct {
	Code      string `json:"code"`
	ProductID int64  `json:"product_id"`
}

// GetCart fetches the cart. The backend answers with either a bare array or an
// object carrying a products array; both are normalized here.
func (c *Client) GetCart(ctx context.Context) ([]CartItem, error) {
	var raw json.RawMessage
	if err := c.do(ctx, call{Endpoint: "GET /cart/my-cart/", Method: http.MethodGet, Path: "cart/my-cart/"}, &raw); err != nil {
		return nil, err
	}
	items, err := decodeCart(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeMalformedPayload, err, "decoding cart")
	}
	return items, nil
}

func decodeCart(raw json.RawMessage) ([]CartItem, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []CartItem{}, nil
	}
	switch trimmed[0] {
	case '[':
		var items []CartItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return nonNil(items), nil
	case '{':
		var envelope struct {
			Products json.RawMessage `json:"products"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, err
		}
		products := bytes.TrimSpace(envelope.Products)
		if len(products) == 0 || products[0] != '[' {
			return []CartItem{}, nil
		}
		var items []CartItem
		if err := json.Unmarshal(products, &items); err != nil {
			return nil, err
		}
		return nonNil(items), nil
	default:
		return nil, fmt.Errorf("unexpected cart payload starting with %q", trimmed[0])
	}
}

func nonNil(items []CartItem) []CartItem {
	if items == nil {
		return []CartItem{}
	}
	return items
}

// AddProduct creates a cart line for the product.
func (c *Client) AddProduct(ctx context.Context, productID int64, quantity int) error {
	return c.do(ctx, call{
		Endpoint: "POST /cart/my-cart/",
		Method:   http.MethodPost,
		Path:     "cart/my-cart/",
		Body:     addProductRequest{ProductID: productID, Quantity: quantity},
	}, nil)
}

// DeleteProduct removes the product's line.
func (c *Client) DeleteProduct(ctx context.Context, productID int64) error {
	return c.do(ctx, call{
		Endpoint: "DELETE /cart/delete-product/{id}/",
		Method:   http.MethodDelete,
		Path:     fmt.Sprintf("cart/delete-product/%d/", productID),
	}, nil)
}

// UpdateQuantity uses the single-call update endpoint.
func (c *Client) UpdateQuantity(ctx context.Context, productID int64, quantity int) error {
	return c.do(ctx, call{
		Endpoint: "PUT /cart/update/{id}/",
		Method:   http.MethodPut,
		Path:     fmt.Sprintf("cart/update/%d/", productID),
		Body:     updateQuantityRequest{Quantity: quantity},
	}, nil)
}

// ValidateCoupon asks the backend whether code applies to the product.
func (c *Client) ValidateCoupon(ctx context.Context, code string, productID int64) (CouponResult, error) {
	var out CouponResult
	err := c.do(ctx, call{
		Endpoint: "POST /coupons/validate/",
		Method:   http.MethodPost,
		Path:     "coupons/validate/",
		Body:     validateCouponRequest{Code: code, ProductID: productID},
	}, &out)
	if err != nil {
		return CouponResult{}, err
	}
	if err := validate.Struct(out); err != nil {
		return CouponResult{}, pkgerrors.Wrap(pkgerrors.CodeMalformedPayload, err, "coupon response missing fields")
	}
	return out, nil
}
