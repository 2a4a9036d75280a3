package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/agroconexion/storefront-sync/internal/backend"
	"github.com/agroconexion/storefront-sync/internal/cart"
	checkoutsvc "github.com/agroconexion/storefront-sync/internal/checkout"
	"github.com/agroconexion/storefront-sync/pkg/config"
	"github.com/agroconexion/storefront-sync/pkg/enums"
	"github.com/agroconexion/storefront-sync/pkg/metrics"
	pkgredis "github.com/agroconexion/storefront-sync/pkg/redis"
)

type stubCart struct {
	snap cart.Snapshot
}

func (s *stubCart) Snapshot() cart.Snapshot    { return s.snap }
func (s *stubCart) Load(context.Context) error { return nil }

type stubMutator struct {
	quantities map[int64]int
}

func (s *stubMutator) SetQuantity(_ context.Context, lineID, _ int64, quantity int) error {
	s.quantities[lineID] = quantity
	return nil
}
func (s *stubMutator) RemoveLine(context.Context, int64, int64) error { return nil }
func (s *stubMutator) ApplyCoupon(context.Context, int64, int64, string) (cart.Coupon, error) {
	return cart.Coupon{}, nil
}
func (s *stubMutator) RemoveCoupon(context.Context, int64) error    { return nil }
func (s *stubMutator) AddProduct(context.Context, int64, int) error { return nil }
func (s *stubMutator) BusyLines() []int64                           { return nil }

type stubCheckout struct {
	calls int
}

func (s *stubCheckout) BuyProduct(context.Context, checkoutsvc.BuyInput) (backend.Invoice, error) {
	s.calls++
	return backend.Invoice{ID: 501}, nil
}

func (s *stubCheckout) CheckoutCart(context.Context, enums.PaymentMethod) (backend.Invoice, error) {
	s.calls++
	return backend.Invoice{ID: 502}, nil
}

type stubFeed struct{}

func (stubFeed) Items() []backend.Notification       { return nil }
func (stubFeed) UnreadCount() int                    { return 0 }
func (stubFeed) State() enums.StreamState            { return enums.StreamStateReady }
func (stubFeed) Delete(context.Context, int64) error { return nil }
func (stubFeed) MarkAllRead(context.Context) error   { return nil }
func (stubFeed) Reload(context.Context) error        { return nil }

type memoryIdempotency struct {
	data map[string]string
}

func (m *memoryIdempotency) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", pkgredis.ErrMiss
}

func (m *memoryIdempotency) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key], _ = value.(string)
	return true, nil
}

func (m *memoryIdempotency) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

type fixture struct {
	handler  http.Handler
	mutator  *stubMutator
	checkout *stubCheckout
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewSyncMetrics(reg)
	m.IncMutation("set_quantity", metrics.ResultConfirmed)

	mutator := &stubMutator{quantities: map[int64]int{}}
	checkout := &stubCheckout{}
	handler := NewRouter(Deps{
		Config:   &config.Config{App: config.AppConfig{Env: "test", DefaultLanguage: "es"}},
		Gatherer: reg,
		Cart: &stubCart{snap: cart.Snapshot{Lines: []cart.Line{
			{ID: 7, ProductID: 10, Name: "Café", UnitPrice: decimal.NewFromInt(2000), Quantity: 1},
		}}},
		Coordinator:   mutator,
		Checkout:      checkout,
		Notifications: stubFeed{},
		Idempotency:   &memoryIdempotency{data: map[string]string{}},
	})
	return fixture{handler: handler, mutator: mutator, checkout: checkout}
}

func TestRouterHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	resp := httptest.NewRecorder()
	f.handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected ready 200 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	f.handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected metrics 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "storefront_cart_mutations_total") {
		t.Fatalf("expected sync metrics in exposition")
	}
}

func TestRouterCartLineRoute(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPut, "/api/cart/lines/7/quantity", strings.NewReader(`{"quantity":3}`))
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	resp := httptest.NewRecorder()
	f.handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if f.mutator.quantities[7] != 3 {
		t.Fatalf("expected quantity 3 on line 7, got %v", f.mutator.quantities)
	}
	if got := resp.Header().Get("Content-Language"); got != "en" {
		t.Fatalf("expected Content-Language en, got %q", got)
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Message != "Cart updated." {
		t.Fatalf("unexpected message %q", body.Message)
	}
}

func TestRouterCheckoutIsIdempotent(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/checkout/cart", strings.NewReader(`{"method":"efectivo"}`))
		req.Header.Set("Idempotency-Key", "order-1")
		resp := httptest.NewRecorder()
		f.handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201 got %d", i, resp.Code)
		}
	}
	if f.checkout.calls != 1 {
		t.Fatalf("expected one checkout call, got %d", f.checkout.calls)
	}

	resp := httptest.NewRecorder()
	f.handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/checkout/cart", strings.NewReader(`{"method":"efectivo"}`)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without idempotency key, got %d", resp.Code)
	}
}

func TestRouterNotifications(t *testing.T) {
	f := newFixture(t)

	resp := httptest.NewRecorder()
	f.handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/notifications", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	f.handler.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/api/notifications/3", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	f.handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/notifications/reload", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}
