package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/agroconexion/storefront-sync/internal/backend"
	"github.com/agroconexion/storefront-sync/internal/events"
	"github.com/agroconexion/storefront-sync/pkg/config"
	"github.com/agroconexion/storefront-sync/pkg/enums"
	pkgerrors "github.com/agroconexion/storefront-sync/pkg/errors"
	"github.com/agroconexion/storefront-sync/pkg/redis"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	mu sync.Mutex

	items    []backend.CartItem
	getErr   error
	addErr   func(productID int64, qty int) error
	deleteFn func(productID int64) error
	updateFn func(productID int64, qty int) error
	couponFn func(code string, productID int64) (backend.CouponResult, error)

	getCalls    int
	addCalls    []int
	deleteCalls int
	updateCalls int
	couponCalls int
}

func (f *fakeRemote) GetCart(context.Context) ([]backend.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	out := make([]backend.CartItem, len(f.items))
	copy(out, f.items)
	return out, nil
}

func (f *fakeRemote) AddProduct(_ context.Context, productID int64, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls = append(f.addCalls, qty)
	if f.addErr != nil {
		return f.addErr(productID, qty)
	}
	return nil
}

func (f *fakeRemote) DeleteProduct(_ context.Context, productID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.deleteFn != nil {
		return f.deleteFn(productID)
	}
	return nil
}

func (f *fakeRemote) UpdateQuantity(_ context.Context, productID int64, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.updateFn != nil {
		return f.updateFn(productID, qty)
	}
	return nil
}

func (f *fakeRemote) ValidateCoupon(_ context.Context, code string, productID int64) (backend.CouponResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.couponCalls++
	if f.couponFn != nil {
		return f.couponFn(code, productID)
	}
	return backend.CouponResult{Discount: decimal.NewFromInt(10), Type: "percentage"}, nil
}

func (f *fakeRemote) remoteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.addCalls) + f.deleteCalls + f.updateCalls + f.couponCalls
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(topic events.Topic, op string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, string(topic)+":"+op)
}

func (p *recordingPublisher) has(entry string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e == entry {
			return true
		}
	}
	return false
}

type memoryCache struct {
	data map[string][]byte
	ttl  time.Duration
}

func (m *memoryCache) SaveCartSnapshot(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	m.data[key] = payload
	m.ttl = ttl
	return nil
}

func (m *memoryCache) LoadCartSnapshot(_ context.Context, key string) ([]byte, error) {
	payload, ok := m.data[key]
	if !ok {
		return nil, redis.ErrMiss
	}
	return payload, nil
}

func cartItem(lineID, productID int64, price string, qty int, offer string) backend.CartItem {
	item := backend.CartItem{
		ID: lineID,
		Product: backend.Product{
			ID:     productID,
			Name:   "product",
			Price:  decimal.RequireFromString(price),
			Images: []backend.ProductImage{{Image: "/media/p.png"}},
		},
		Quantity: qty,
	}
	if offer != "" {
		item.Product.Offers = &backend.Offer{Percentage: decimal.RequireFromString(offer)}
	}
	return item
}

func statusErr(status int) error {
	return pkgerrors.New(pkgerrors.FromStatus(status), http.StatusText(status)).
		WithDetails(pkgerrors.StatusDetails{Status: status, Endpoint: "test"})
}

func newLoadedStore(t *testing.T, remote *fakeRemote, mutate func(*Options)) (*Store, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	opts := Options{
		Remote:       remote,
		UpdateMode:   config.UpdateModePut,
		MediaBaseURL: "https://cdn.example.com",
		Events:       pub,
	}
	if mutate != nil {
		mutate(&opts)
	}
	store, err := NewStore(opts)
	require.NoError(t, err)
	require.NoError(t, store.Load(context.Background()))
	return store, pub
}

func TestLoadConvertsItems(t *testing.T) {
	remote := &fakeRemote{items: []backend.CartItem{
		cartItem(1, 10, "2000.00", 2, "10.00"),
		cartItem(2, 11, "500.00", 0, ""),
		cartItem(3, 12, "300.00", 1, ""),
	}}
	store, pub := newLoadedStore(t, remote, nil)

	snap := store.Snapshot()
	require.Len(t, snap.Lines, 2)
	assert.Equal(t, int64(1), snap.Lines[0].ID)
	assert.Equal(t, int64(3), snap.Lines[1].ID)
	assert.Equal(t, "https://cdn.example.com/media/p.png", snap.Lines[0].ImageURL)
	assert.True(t, snap.Lines[0].OfferDiscountPercent.Valid)
	assert.False(t, snap.Lines[1].OfferDiscountPercent.Valid)
	assert.True(t, snap.Lines[0].EffectivePrice().Equal(decimal.NewFromInt(1800)))
	assert.True(t, snap.Totals().TotalPrice.Equal(decimal.NewFromInt(3900)))
	assert.True(t, pub.has("cartChanged:load"))
	assert.True(t, store.Loaded())
}

func TestLoadFailureKeepsSnapshotAndClassifies(t *testing.T) {
	remote := &fakeRemote{items: []backend.CartItem{cartItem(1, 10, "100", 1, "")}}
	store, _ := newLoadedStore(t, remote, nil)
	before := store.Snapshot()

	remote.getErr = statusErr(http.StatusUnauthorized)
	err := store.Load(context.Background())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsUnauthorized(err))
	assert.Equal(t, before, store.Snapshot())

	remote.getErr = pkgerrors.New(pkgerrors.CodeTransient, "timeout")
	err = store.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeTransient, pkgerrors.CodeOf(err))
}

func TestLoadPreservesCouponsByProduct(t *testing.T) {
	remote := &fakeRemote{items: []backend.CartItem{
		cartItem(1, 10, "1000", 1, ""),
		cartItem(2, 11, "1000", 1, ""),
	}}
	store, _ := newLoadedStore(t, remote, nil)

	_, err := store.ApplyCoupon(context.Background(), 1, 10, "VERANO")
	require.NoError(t, err)

	// line 1 was recreated under a new id; product 11 is gone.
	remote.items = []backend.CartItem{cartItem(9, 10, "1000", 3, "")}
	require.NoError(t, store.Load(context.Background()))

	line, ok := store.Snapshot().Line(9)
	require.True(t, ok)
	require.NotNil(t, line.AppliedCoupon)
	assert.Equal(t, "VERANO", line.AppliedCoupon.Code)
	assert.Len(t, store.Snapshot().Lines, 1)
}

func TestSetQuantityRejectsBelowOne(t *testing.T) {
	remote := &fakeRemote{items: []backend.CartItem{cartItem(1, 10, "100", 2, "")}}
	store, _ := newLoadedStore(t, remote, nil)
	before := store.Snapshot()

	for _, qty := range []int{0, -3} {
		err := store.SetQuantity(context.Background(), 1, 10, qty)
		require.ErrorIs(t, err, ErrInvalidQuantity)
		assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	}
	assert.Equal(t, 0, remote.remoteCalls())
	assert.Equal(t, before, store.Snapshot())
}

func TestSetQuantityPutModeConfirms(t *testing.T) {
	remote := &fakeRemote{items: []backend.CartItem{cartItem(1, 10, "100", 2, "")}}
	store, pub := newLoadedStore(t, remote, nil)

	require.NoError(t, store.SetQuantity(context.Background(), 1, 10, 5))
	assert.Equal(t, 1, remote.updateCalls)
	assert.Equal(t, 0, remote.deleteCalls)
	line, _ := store.Snapshot().Line(1)
	assert.Equal(t, 5, line.Quantity)
	assert.True(t, pub.has("cartUpdated:set_quantity"))
}

func TestSetQuantityReplaceModeDeletesThenAdds(t *testing.T) {
	remote := &fakeRemote{items: []backend.CartItem{cartItem(1, 10, "100", 2, "")}}
	store, _ := newLoadedStore(t, remote, func(o *Options) { o.UpdateMode = config.UpdateModeReplace })

	remote.items = []backend.CartItem{cartItem(4, 10, "100", 6, "")}
	require.NoError(t, store.SetQuantity(context.Background(), 1, 10, 6))
	assert.Equal(t, 1, remote.deleteCalls)
	assert.Equal(t, []int{6}, remote.addCalls)
	assert.Equal(t, 2, remote.getCalls)

	line, ok := store.Snapshot().Line(4)
	require.True(t, ok)
	assert.Equal(t, 6, line.Quantity)
}

func TestSetQuantityReplaceModeRestoresOnCreateFailure(t *testing.T) {
	remote := &fakeRemote{items: []backend.CartItem{cartItem(1, 10, "100", 2, "")}}
	store, _ := newLoadedStore(t, remote, func(o *Options) { o.UpdateMode = config.UpdateModeReplace })
	remote.addErr = func(_ int64, qty int) error {
		if qty == 6 {
			return statusErr(http.StatusBadGateway)
		}
		return nil
	}
	before := store.Snapshot()

	err := store.SetQuantity(context.Background(), 1, 10, 6)
	require.Error(t, err)
	assert.Equal(t, []int{6, 2}, remote.addCalls)
	assert.Equal(t, before, store.Snapshot())
}

func TestSetQuantityRollsBackOnlyThatLine(t *testing.T) {
	remote := &fakeRemote{items: []backend.CartItem{
		cartItem(1, 10, "100", 2, ""),
		cartItem(2, 11, "100", 1, ""),
	}}
	store, pub := newLoadedStore(t, remote, nil)
	_, err := store.ApplyCoupon(context.Background(), 1, 10, "VERANO")
	require.NoError(t, err)
	before := store.Snapshot()

	remote.updateFn = func(int64, int) error { return statusErr(http.StatusServiceUnavailable) }
	err = store.SetQuantity(context.Background(), 1, 10, 9)
	require.Error(t, err)

	opErr, ok := AsOpError(err)
	require.True(t, ok)
	assert.True(t, opErr.RolledBack)
	assert.Equal(t, OpSetQuantity, opErr.Op)
	assert.True(t, pkgerrors.IsRetryable(err))
	assert.Equal(t, before, store.Snapshot())
	assert.False(t, pub.has("cartUpdated:set_quantity"))
}

func TestRemoveLineRollsBackAtOriginalIndex(t *testing.T) {
	remote := &fakeRemote{items: []backend.CartItem{
		cartItem(1, 10, "100", 1, ""),
		cartItem(2, 11, "200", 2, ""),
		cartItem(3, 12, "300", 3, ""),
	}}
	store, _ := newLoadedStore(t, remote, nil)
	before := store.Snapshot()

	remote.deleteFn = func(int64) error { return statusErr(http.StatusInternalServerError) }
	err := store.RemoveLine(context.Background(), 2, 11)
	require.Error(t, err)
	assert.Equal(t, before, store.Snapshot())

	remote.deleteFn = nil
	require.NoError(t, store.RemoveLine(context.Background(), 2, 11))
	_, ok := store.Snapshot().Line(2)
	assert.False(t, ok)
	assert.Len(t, store.Snapshot().Lines, 2)
}

func TestRemoveLineUnknown(t *testing.T) {
	store, _ := newLoadedStore(t, &fakeRemote{}, nil)
	err := store.RemoveLine(context.Background(), 5, 50)
	require.ErrorIs(t, err, ErrLineNotFound)
}

func TestApplyCouponClassifiesFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
		code pkgerrors.Code
	}{
		{name: "not found", err: statusErr(http.StatusNotFound), kind: ErrCouponNotFound, code: pkgerrors.CodeNotFound},
		{name: "not applicable", err: statusErr(http.StatusBadRequest), kind: ErrCouponNotApplicable, code: pkgerrors.CodeValidation},
		{name: "unauthorized", err: statusErr(http.StatusUnauthorized), kind: ErrCouponUnknown, code: pkgerrors.CodeUnauthorized},
		{name: "server", err: statusErr(http.StatusBadGateway), kind: ErrCouponUnknown, code: pkgerrors.CodeTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := &fakeRemote{
				items: []backend.CartItem{cartItem(1, 10, "100", 1, "")},
				couponFn: func(string, int64) (backend.CouponResult, error) {
					return backend.CouponResult{}, tt.err
				},
			}
			store, _ := newLoadedStore(t, remote, nil)
			before := store.Snapshot()

			_, err := store.ApplyCoupon(context.Background(), 1, 10, "X")
			require.ErrorIs(t, err, tt.kind)
			assert.Equal(t, tt.code, pkgerrors.CodeOf(err))
			assert.Equal(t, before, store.Snapshot())
		})
	}
}

func TestApplyCouponRejectsUnusableResponse(t *testing.T) {
	remote := &fakeRemote{
		items: []backend.CartItem{cartItem(1, 10, "100", 1, "")},
		couponFn: func(string, int64) (backend.CouponResult, error) {
			return backend.CouponResult{Discount: decimal.NewFromInt(5), Type: "bogus"}, nil
		},
	}
	store, _ := newLoadedStore(t, remote, nil)

	_, err := store.ApplyCoupon(context.Background(), 1, 10, "X")
	require.ErrorIs(t, err, ErrCouponUnknown)
	assert.Equal(t, pkgerrors.CodeMalformedPayload, pkgerrors.CodeOf(err))
	line, _ := store.Snapshot().Line(1)
	assert.Nil(t, line.AppliedCoupon)
}

func TestApplyCouponReplacesExisting(t *testing.T) {
	remote := &fakeRemote{items: []backend.CartItem{cartItem(1, 10, "4000", 1, "")}}
	remote.couponFn = func(code string, _ int64) (backend.CouponResult, error) {
		if code == "FIJO" {
			return backend.CouponResult{Discount: decimal.NewFromInt(600), Type: "Fixed"}, nil
		}
		return backend.CouponResult{Discount: decimal.NewFromInt(10), Type: "percentage"}, nil
	}
	store, pub := newLoadedStore(t, remote, nil)

	_, err := store.ApplyCoupon(context.Background(), 1, 10, "DIEZ")
	require.NoError(t, err)
	coupon, err := store.ApplyCoupon(context.Background(), 1, 10, "  FIJO ")
	require.NoError(t, err)
	assert.Equal(t, "FIJO", coupon.Code)
	assert.Equal(t, enums.DiscountTypeFixed, coupon.DiscountType)

	line, _ := store.Snapshot().Line(1)
	require.NotNil(t, line.AppliedCoupon)
	assert.Equal(t, "FIJO", line.AppliedCoupon.Code)
	assert.True(t, line.EffectivePrice().Equal(decimal.NewFromInt(3400)))
	assert.True(t, pub.has("cartUpdated:apply_coupon"))
}

func TestApplyCouponBlankCode(t *testing.T) {
	remote := &fakeRemote{items: []backend.CartItem{cartItem(1, 10, "100", 1, "")}}
	store, _ := newLoadedStore(t, remote, nil)

	_, err := store.ApplyCoupon(context.Background(), 1, 10, "   ")
	require.ErrorIs(t, err, ErrCouponCodeRequired)
	assert.Equal(t, 0, remote.couponCalls)
}

func TestRemoveCouponIsLocal(t *testing.T) {
	remote := &fakeRemote{items: []backend.CartItem{cartItem(1, 10, "100", 1, "")}}
	store, pub := newLoadedStore(t, remote, nil)
	_, err := store.ApplyCoupon(context.Background(), 1, 10, "VERANO")
	require.NoError(t, err)
	calls := remote.remoteCalls()

	require.NoError(t, store.RemoveCoupon(context.Background(), 1))
	line, _ := store.Snapshot().Line(1)
	assert.Nil(t, line.AppliedCoupon)
	assert.Equal(t, calls, remote.remoteCalls())
	assert.True(t, pub.has("cartChanged:remove_coupon"))
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	remote := &fakeRemote{items: []backend.CartItem{cartItem(1, 10, "100", 1, "")}}
	store, _ := newLoadedStore(t, remote, nil)
	_, err := store.ApplyCoupon(context.Background(), 1, 10, "VERANO")
	require.NoError(t, err)

	snap := store.Snapshot()
	snap.Lines[0].Quantity = 99
	snap.Lines[0].AppliedCoupon.Code = "HACK"

	line, _ := store.Snapshot().Line(1)
	assert.Equal(t, 1, line.Quantity)
	assert.Equal(t, "VERANO", line.AppliedCoupon.Code)
}

func TestAddProductReloads(t *testing.T) {
	remote := &fakeRemote{}
	store, pub := newLoadedStore(t, remote, nil)

	remote.items = []backend.CartItem{cartItem(7, 10, "100", 2, "")}
	require.NoError(t, store.AddProduct(context.Background(), 10, 2))
	_, ok := store.Snapshot().Line(7)
	assert.True(t, ok)
	assert.True(t, pub.has("cartUpdated:add_product"))

	err := store.AddProduct(context.Background(), 10, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestSnapshotCacheRoundTrip(t *testing.T) {
	cache := &memoryCache{}
	remote := &fakeRemote{items: []backend.CartItem{cartItem(1, 10, "2000", 2, "10")}}
	_, _ = newLoadedStore(t, remote, func(o *Options) {
		o.Cache = cache
		o.CacheKey = "u1"
		o.CacheTTL = time.Hour
	})
	require.Contains(t, cache.data, "u1")
	assert.Equal(t, time.Hour, cache.ttl)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(cache.data["u1"], &decoded))
	require.Len(t, decoded.Lines, 1)

	fresh, err := NewStore(Options{Remote: &fakeRemote{}, Cache: cache, CacheKey: "u1"})
	require.NoError(t, err)
	restored, err := fresh.Restore(context.Background())
	require.NoError(t, err)
	assert.True(t, restored)
	line, ok := fresh.Snapshot().Line(1)
	require.True(t, ok)
	assert.True(t, line.EffectivePrice().Equal(decimal.NewFromInt(1800)))

	empty, err := NewStore(Options{Remote: &fakeRemote{}, Cache: cache, CacheKey: "other"})
	require.NoError(t, err)
	restored, err = empty.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, restored)
}

func TestClearEmptiesSnapshot(t *testing.T) {
	remote := &fakeRemote{items: []backend.CartItem{cartItem(1, 10, "100", 1, "")}}
	store, pub := newLoadedStore(t, remote, nil)

	store.Clear(context.Background())
	assert.Empty(t, store.Snapshot().Lines)
	assert.True(t, pub.has("cartChanged:clear"))
}

func TestNewStoreRejectsUnknownMode(t *testing.T) {
	_, err := NewStore(Options{Remote: &fakeRemote{}, UpdateMode: "patch"})
	require.Error(t, err)

	_, err = NewStore(Options{})
	require.Error(t, err)
}
