package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agroconexion/storefront-sync/api/middleware"
	"github.com/agroconexion/storefront-sync/pkg/auth"
	"github.com/agroconexion/storefront-sync/pkg/config"
	pkgerrors "github.com/agroconexion/storefront-sync/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate func(*Options)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts := Options{
		BaseURL: srv.URL + "/api",
		Timeout: time.Second,
		Tokens:  auth.StaticToken("token-abc"),
		HTTP:    srv.Client(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	client, err := New(opts)
	require.NoError(t, err)
	return client
}

func TestGetCartNormalizesPayloadShapes(t *testing.T) {
	item := `{"id":7,"product":{"id":10,"name":"Café","price":"2000.00","images":[{"image":"/media/cafe.png"}],"offers":{"percentage":"10.00"}},"quantity":2}`
	tests := []struct {
		name  string
		body  string
		count int
	}{
		{name: "bare array", body: "[" + item + "]", count: 1},
		{name: "products envelope", body: `{"products":[` + item + `]}`, count: 1},
		{name: "products not an array", body: `{"products":"nope"}`, count: 0},
		{name: "empty object", body: `{}`, count: 0},
		{name: "null", body: `null`, count: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/cart/my-cart/", r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			}, nil)

			items, err := client.GetCart(context.Background())
			require.NoError(t, err)
			require.NotNil(t, items)
			require.Len(t, items, tt.count)
			if tt.count == 1 {
				assert.Equal(t, int64(7), items[0].ID)
				assert.Equal(t, int64(10), items[0].Product.ID)
				assert.True(t, items[0].Product.Price.Equal(decimal.NewFromInt(2000)))
				require.NotNil(t, items[0].Product.Offers)
				assert.True(t, items[0].Product.Offers.Percentage.Equal(decimal.NewFromInt(10)))
			}
		})
	}
}

func TestGetCartRejectsScalarPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`"cart"`))
	}, nil)

	_, err := client.GetCart(context.Background())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeMalformedPayload, pkgerrors.CodeOf(err))
}

func TestRequestCarriesAuthAndRequestID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-abc", r.Header.Get("Authorization"))
		assert.Equal(t, "req-42", r.Header.Get(middleware.RequestIDHeader))
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(10), body["product_id"])
		assert.Equal(t, float64(3), body["quantity"])
		w.WriteHeader(http.StatusCreated)
	}, nil)

	ctx := middleware.WithRequestID(context.Background(), "req-42")
	require.NoError(t, client.AddProduct(ctx, 10, 3))
}

func TestMissingTokenSendsNoAuthorization(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get(middleware.RequestIDHeader))
		w.WriteHeader(http.StatusUnauthorized)
	}, func(o *Options) { o.Tokens = auth.StaticToken("") })

	_, err := client.ListNotifications(context.Background())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsUnauthorized(err))
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		code   pkgerrors.Code
	}{
		{status: http.StatusBadRequest, code: pkgerrors.CodeValidation},
		{status: http.StatusUnauthorized, code: pkgerrors.CodeUnauthorized},
		{status: http.StatusNotFound, code: pkgerrors.CodeNotFound},
		{status: http.StatusBadGateway, code: pkgerrors.CodeTransient},
	}
	for _, tt := range tests {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(`{"detail":"nope"}`))
		}, nil)

		_, err := client.ValidateCoupon(context.Background(), "VERANO", 10)
		require.Error(t, err)
		assert.Equal(t, tt.code, pkgerrors.CodeOf(err), "status %d", tt.status)
		assert.Equal(t, tt.status, StatusOf(err))
	}
}

func TestValidateCouponDecodesAndChecksFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body validateCouponRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.Code == "BROKEN" {
			_, _ = w.Write([]byte(`{"discount":5}`))
			return
		}
		_, _ = w.Write([]byte(`{"discount":"15.00","type":"percentage"}`))
	}, nil)

	res, err := client.ValidateCoupon(context.Background(), "QUINCE", 10)
	require.NoError(t, err)
	assert.True(t, res.Discount.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, "percentage", res.Type)

	_, err = client.ValidateCoupon(context.Background(), "BROKEN", 10)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeMalformedPayload, pkgerrors.CodeOf(err))
}

func TestTimeoutIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, func(o *Options) { o.Timeout = 30 * time.Millisecond })

	err := client.DeleteProduct(context.Background(), 10)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeTransient, pkgerrors.CodeOf(err))
	assert.True(t, pkgerrors.IsRetryable(err))
}

func TestBreakerOpensAfterConsecutiveServerErrors(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, func(o *Options) {
		o.Breaker = config.BreakerConfig{ConsecutiveFailures: 2, Timeout: time.Minute}
	})

	for i := 0; i < 2; i++ {
		err := client.UpdateQuantity(context.Background(), 10, 2)
		require.Error(t, err)
		assert.Equal(t, http.StatusInternalServerError, StatusOf(err))
	}

	err := client.UpdateQuantity(context.Background(), 10, 2)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeTransient, pkgerrors.CodeOf(err))
	assert.Equal(t, 0, StatusOf(err))
	assert.Equal(t, int32(2), hits.Load())
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}, func(o *Options) {
		o.Breaker = config.BreakerConfig{ConsecutiveFailures: 1, Timeout: time.Minute}
	})

	for i := 0; i < 3; i++ {
		err := client.DeleteNotification(context.Background(), 99)
		require.Error(t, err)
		assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
	}
	assert.Equal(t, int32(3), hits.Load())
}

func TestInvoiceEndpoints(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/invoices/create/":
			var body CreateInvoiceRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "efectivo", body.Method)
			if assert.Len(t, body.Items, 1) && assert.NotNil(t, body.Items[0].Coupon) {
				assert.Equal(t, "VERANO", body.Items[0].Coupon.Code)
			}
			_, _ = w.Write([]byte(`{"id":501,"total":"900.00"}`))
		case "/api/invoices/from-cart/":
			_, _ = w.Write([]byte(`{"id":502}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}, nil)

	inv, err := client.CreateInvoice(context.Background(), CreateInvoiceRequest{
		Method: "efectivo",
		Items:  []InvoiceItem{{ProductID: 10, Quantity: 1, Coupon: &InvoiceCoupon{Code: "VERANO"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(501), inv.ID)

	inv, err = client.InvoiceFromCart(context.Background(), InvoiceFromCartRequest{Method: "efectivo"})
	require.NoError(t, err)
	assert.Equal(t, int64(502), inv.ID)
}

func TestNotificationValidate(t *testing.T) {
	assert.NoError(t, Notification{ID: 1, Type: "order", Message: "hola"}.Validate())
	assert.Error(t, Notification{Type: "order"}.Validate())
	assert.Error(t, Notification{ID: 1}.Validate())
}

func TestNewRejectsRelativeBaseURL(t *testing.T) {
	_, err := New(Options{BaseURL: "/api"})
	require.Error(t, err)
}
