package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agroconexion/storefront-sync/internal/cart"
	pkgerrors "github.com/agroconexion/storefront-sync/pkg/errors"
	"github.com/agroconexion/storefront-sync/pkg/logger"
	"github.com/agroconexion/storefront-sync/pkg/metrics"
	"github.com/google/uuid"
)

// ErrLineBusy rejects a mutation intent while another one for the same line
// or product is still in flight.
var ErrLineBusy = pkgerrors.New(pkgerrors.CodeConflict, "another change to this cart line is in progress")

// CartMutator is the subset of cart.Store the coordinator serializes.
type CartMutator interface {
	SetQuantity(ctx context.Context, lineID, productID int64, quantity int) error
	RemoveLine(ctx context.Context, lineID, productID int64) error
	ApplyCoupon(ctx context.Context, lineID, productID int64, code string) (cart.Coupon, error)
	RemoveCoupon(ctx context.Context, lineID int64) error
	AddProduct(ctx context.Context, productID int64, quantity int) error
}

// PendingOperation describes one in-flight mutation.
type PendingOperation struct {
	ID        uuid.UUID `json:"id"`
	LineID    int64     `json:"line_id,omitempty"`
	ProductID int64     `json:"product_id,omitempty"`
	Kind      cart.Op   `json:"kind"`
	StartedAt time.Time `json:"started_at"`
}

// Coordinator keeps a set of in-flight line and product keys. Intents for a
// busy key are rejected, not queued; different lines proceed concurrently.
type Coordinator struct {
	store   CartMutator
	metrics *metrics.SyncMetrics
	logg    *logger.Logger
	now     func() time.Time

	mu       sync.Mutex
	inflight map[string]*PendingOperation
}

func New(store CartMutator, m *metrics.SyncMetrics, logg *logger.Logger) *Coordinator {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Coordinator{
		store:    store,
		metrics:  m,
		logg:     logg,
		now:      time.Now,
		inflight: make(map[string]*PendingOperation),
	}
}

func lineKey(lineID int64) string       { return fmt.Sprintf("line:%d", lineID) }
func productKey(productID int64) string { return fmt.Sprintf("product:%d", productID) }

// acquire claims every key or none of them.
func (c *Coordinator) acquire(op *PendingOperation, keys ...string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		if _, busy := c.inflight[key]; busy {
			return false
		}
	}
	for _, key := range keys {
		c.inflight[key] = op
	}
	return true
}

func (c *Coordinator) release(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.inflight, key)
	}
}

// guard runs fn while holding keys. The keys are released only after fn
// returns, which for cart.Store means after any rollback has completed.
func (c *Coordinator) guard(ctx context.Context, kind cart.Op, lineID, productID int64, fn func() error) error {
	keys := make([]string, 0, 2)
	if lineID != 0 {
		keys = append(keys, lineKey(lineID))
	}
	if productID != 0 {
		keys = append(keys, productKey(productID))
	}
	op := &PendingOperation{
		ID:        uuid.New(),
		LineID:    lineID,
		ProductID: productID,
		Kind:      kind,
		StartedAt: c.now().UTC(),
	}
	if !c.acquire(op, keys...) {
		c.metrics.IncMutation(string(kind), metrics.ResultRejected)
		c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
			"op":         string(kind),
			"line_id":    lineID,
			"product_id": productID,
		}), "coordinator.intent_rejected")
		return ErrLineBusy
	}
	defer c.release(keys...)
	return fn()
}

func (c *Coordinator) SetQuantity(ctx context.Context, lineID, productID int64, quantity int) error {
	return c.guard(ctx, cart.OpSetQuantity, lineID, productID, func() error {
		return c.store.SetQuantity(ctx, lineID, productID, quantity)
	})
}

func (c *Coordinator) RemoveLine(ctx context.Context, lineID, productID int64) error {
	return c.guard(ctx, cart.OpRemoveLine, lineID, productID, func() error {
		return c.store.RemoveLine(ctx, lineID, productID)
	})
}

func (c *Coordinator) ApplyCoupon(ctx context.Context, lineID, productID int64, code string) (cart.Coupon, error) {
	var coupon cart.Coupon
	err := c.guard(ctx, cart.OpApplyCoupon, lineID, productID, func() error {
		var err error
		coupon, err = c.store.ApplyCoupon(ctx, lineID, productID, code)
		return err
	})
	return coupon, err
}

func (c *Coordinator) RemoveCoupon(ctx context.Context, lineID int64) error {
	return c.guard(ctx, cart.OpRemoveCoupon, lineID, 0, func() error {
		return c.store.RemoveCoupon(ctx, lineID)
	})
}

func (c *Coordinator) AddProduct(ctx context.Context, productID int64, quantity int) error {
	return c.guard(ctx, cart.OpAddProduct, 0, productID, func() error {
		return c.store.AddProduct(ctx, productID, quantity)
	})
}

// IsBusy reports whether a mutation for lineID is in flight.
func (c *Coordinator) IsBusy(lineID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, busy := c.inflight[lineKey(lineID)]
	return busy
}

// InFlight lists pending operations ordered by start time.
func (c *Coordinator) InFlight() []PendingOperation {
	c.mu.Lock()
	seen := make(map[uuid.UUID]struct{}, len(c.inflight))
	out := make([]PendingOperation, 0, len(c.inflight))
	for _, op := range c.inflight {
		if _, dup := seen[op.ID]; dup {
			continue
		}
		seen[op.ID] = struct{}{}
		out = append(out, *op)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].LineID < out[j].LineID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// BusyLines returns the ids of lines with a mutation in flight.
func (c *Coordinator) BusyLines() []int64 {
	ops := c.InFlight()
	out := make([]int64, 0, len(ops))
	for _, op := range ops {
		if op.LineID != 0 {
			out = append(out, op.LineID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
