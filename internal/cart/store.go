package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agroconexion/storefront-sync/internal/backend"
	"github.com/agroconexion/storefront-sync/internal/events"
	"github.com/agroconexion/storefront-sync/internal/media"
	"github.com/agroconexion/storefront-sync/pkg/config"
	"github.com/agroconexion/storefront-sync/pkg/enums"
	pkgerrors "github.com/agroconexion/storefront-sync/pkg/errors"
	"github.com/agroconexion/storefront-sync/pkg/logger"
	"github.com/agroconexion/storefront-sync/pkg/metrics"
	"github.com/agroconexion/storefront-sync/pkg/redis"
	"github.com/shopspring/decimal"
)

// Remote is the backend surface the store mutates through.
type Remote interface {
	GetCart(ctx context.Context) ([]backend.CartItem, error)
	AddProduct(ctx context.Context, productID int64, quantity int) error
	DeleteProduct(ctx context.Context, productID int64) error
	UpdateQuantity(ctx context.Context, productID int64, quantity int) error
	ValidateCoupon(ctx context.Context, code string, productID int64) (backend.CouponResult, error)
}

// SnapshotCache keeps the last confirmed snapshot for warm starts.
type SnapshotCache interface {
	SaveCartSnapshot(ctx context.Context, userKey string, payload []byte, ttl time.Duration) error
	LoadCartSnapshot(ctx context.Context, userKey string) ([]byte, error)
}

type Options struct {
	Remote              Remote
	Cache               SnapshotCache
	CacheKey            string
	CacheTTL            time.Duration
	UpdateMode          string
	ReloadAfterMutation bool
	MediaBaseURL        string
	Events              events.Publisher
	Metrics             *metrics.SyncMetrics
	Logger              *logger.Logger
	Now                 func() time.Time
}

// Store owns the client-visible cart. Readers get deep copies; every mutation
// goes through the backend with optimistic apply and per-line rollback.
type Store struct {
	remote     Remote
	cache      SnapshotCache
	cacheKey   string
	cacheTTL   time.Duration
	updateMode string
	reload     bool
	mediaBase  string
	events     events.Publisher
	metrics    *metrics.SyncMetrics
	logg       *logger.Logger
	now        func() time.Time
	mu         sync.RWMutex
	snap       Snapshot
	loaded     bool
}

func NewStore(opts Options) (*Store, error) {
	if opts.Remote == nil {
		return nil, fmt.Errorf("cart remote required")
	}
	mode := strings.ToLower(strings.TrimSpace(opts.UpdateMode))
	if mode == "" {
		mode = config.UpdateModeReplace
	}
	if mode != config.UpdateModeReplace && mode != config.UpdateModePut {
		return nil, fmt.Errorf("unknown quantity update mode %q", opts.UpdateMode)
	}
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	cacheKey := opts.CacheKey
	if cacheKey == "" {
		cacheKey = "default"
	}
	return &Store{
		remote:     opts.Remote,
		cache:      opts.Cache,
		cacheKey:   cacheKey,
		cacheTTL:   opts.CacheTTL,
		updateMode: mode,
		reload:     opts.ReloadAfterMutation,
		mediaBase:  opts.MediaBaseURL,
		events:     opts.Events,
		metrics:    opts.Metrics,
		logg:       logg,
		now:        now,
		snap:       Snapshot{Lines: []Line{}},
	}, nil
}

// Snapshot returns a deep copy of the current cart.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.clone()
}

// Loaded reports whether a snapshot has been loaded or restored.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Load fetches the cart and replaces the local snapshot atomically. Coupons
// stay attached to lines whose product is still in the cart.
func (s *Store) Load(ctx context.Context) error {
	ctx = s.logg.WithOperation(ctx, string(OpLoad))
	items, err := s.remote.GetCart(ctx)
	if err != nil {
		if pkgerrors.IsUnauthorized(err) {
			s.logg.Warn(ctx, "cart.load.unauthorized")
		} else {
			s.logg.Error(ctx, "cart.load.failed", err)
		}
		return &OpError{Op: OpLoad, Err: err}
	}

	lines := make([]Line, 0, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			s.logg.Warn(s.logg.WithLineID(ctx, item.ID), "cart.load.skip_empty_line")
			continue
		}
		lines = append(lines, s.lineFromItem(item))
	}

	s.mu.Lock()
	coupons := make(map[int64]*Coupon, len(s.snap.Lines))
	for _, line := range s.snap.Lines {
		if line.AppliedCoupon != nil {
			coupons[line.ProductID] = line.clone().AppliedCoupon
		}
	}
	for i := range lines {
		if coupon, ok := coupons[lines[i].ProductID]; ok {
			lines[i].AppliedCoupon = coupon
		}
	}
	s.snap = Snapshot{Lines: lines, LoadedAt: s.now().UTC()}
	s.loaded = true
	persisted := s.snap.clone()
	s.mu.Unlock()

	s.persist(ctx, persisted)
	s.publish(events.TopicCartChanged, OpLoad)
	return nil
}

func (s *Store) lineFromItem(item backend.CartItem) Line {
	line := Line{
		ID:        item.ID,
		ProductID: item.Product.ID,
		Name:      item.Product.Name,
		UnitPrice: item.Product.Price,
		Quantity:  item.Quantity,
	}
	if len(item.Product.Images) > 0 {
		line.ImageURL = media.ResolveURL(s.mediaBase, item.Product.Images[0].Image)
	}
	if item.Product.Offers != nil && item.Product.Offers.Percentage.IsPositive() {
		line.OfferDiscountPercent = decimal.NewNullDecimal(item.Product.Offers.Percentage)
	}
	return line
}

// Restore seeds the store from the snapshot cache when nothing is loaded yet.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	if s.cache == nil {
		return false, nil
	}
	payload, err := s.cache.LoadCartSnapshot(ctx, s.cacheKey)
	if errors.Is(err, redis.ErrMiss) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading cart snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return false, fmt.Errorf("decoding cart snapshot: %w", err)
	}
	if snap.Lines == nil {
		snap.Lines = []Line{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return false, nil
	}
	s.snap = snap
	s.loaded = true
	return true, nil
}

// SetQuantity optimistically sets a line's quantity and confirms it remotely.
// Quantities below 1 are rejected without touching state or the backend.
func (s *Store) SetQuantity(ctx context.Context, lineID, productID int64, quantity int) error {
	ctx = s.logg.WithLineID(s.logg.WithOperation(ctx, string(OpSetQuantity)), lineID)
	if quantity < 1 {
		s.metrics.IncMutation(string(OpSetQuantity), metrics.ResultInvalid)
		return &OpError{Op: OpSetQuantity, LineID: lineID, Kind: ErrInvalidQuantity}
	}

	prev, idx, err := s.mutateLine(lineID, productID, func(l *Line) { l.Quantity = quantity })
	if err != nil {
		s.metrics.IncMutation(string(OpSetQuantity), metrics.ResultRejected)
		return &OpError{Op: OpSetQuantity, LineID: lineID, Kind: err}
	}
	s.publish(events.TopicCartChanged, OpSetQuantity)

	s.metrics.MutationStarted()
	remoteErr := s.pushQuantity(ctx, productID, prev.Quantity, quantity)
	s.metrics.MutationFinished()

	if remoteErr != nil {
		s.rollbackLine(prev, idx)
		s.metrics.IncMutation(string(OpSetQuantity), metrics.ResultRolledBack)
		s.logg.Error(ctx, "cart.set_quantity.rolled_back", remoteErr)
		s.publish(events.TopicCartChanged, OpSetQuantity)
		return &OpError{Op: OpSetQuantity, LineID: lineID, Err: remoteErr, RolledBack: true}
	}

	s.confirm(ctx, OpSetQuantity, s.reload || s.updateMode == config.UpdateModeReplace)
	return nil
}

// pushQuantity issues the remote update. In replace mode the backend contract
// is delete-then-create; if the create fails after the delete succeeded the
// previous quantity is re-created so the server is not left without the line.
func (s *Store) pushQuantity(ctx context.Context, productID int64, previous, quantity int) error {
	if s.updateMode == config.UpdateModePut {
		return s.remote.UpdateQuantity(ctx, productID, quantity)
	}
	if err := s.remote.DeleteProduct(ctx, productID); err != nil {
		return err
	}
	if err := s.remote.AddProduct(ctx, productID, quantity); err != nil {
		if restoreErr := s.remote.AddProduct(ctx, productID, previous); restoreErr != nil {
			s.logg.Error(ctx, "cart.set_quantity.restore_failed", restoreErr)
		}
		return err
	}
	return nil
}

// RemoveLine optimistically removes a line; on failure it is reinserted at its
// original position.
func (s *Store) RemoveLine(ctx context.Context, lineID, productID int64) error {
	ctx = s.logg.WithLineID(s.logg.WithOperation(ctx, string(OpRemoveLine)), lineID)

	s.mu.Lock()
	idx := s.snap.indexOf(lineID)
	if idx < 0 || s.snap.Lines[idx].ProductID != productID {
		s.mu.Unlock()
		s.metrics.IncMutation(string(OpRemoveLine), metrics.ResultRejected)
		return &OpError{Op: OpRemoveLine, LineID: lineID, Kind: ErrLineNotFound}
	}
	prev := s.snap.Lines[idx].clone()
	s.snap.Lines = append(s.snap.Lines[:idx:idx], s.snap.Lines[idx+1:]...)
	s.mu.Unlock()
	s.publish(events.TopicCartChanged, OpRemoveLine)

	s.metrics.MutationStarted()
	err := s.remote.DeleteProduct(ctx, productID)
	s.metrics.MutationFinished()

	if err != nil {
		s.rollbackLine(prev, idx)
		s.metrics.IncMutation(string(OpRemoveLine), metrics.ResultRolledBack)
		s.logg.Error(ctx, "cart.remove_line.rolled_back", err)
		s.publish(events.TopicCartChanged, OpRemoveLine)
		return &OpError{Op: OpRemoveLine, LineID: lineID, Err: err, RolledBack: true}
	}

	s.confirm(ctx, OpRemoveLine, s.reload)
	return nil
}

// ApplyCoupon validates code remotely and attaches it to the line, replacing
// any previous coupon. Local state is untouched on failure.
func (s *Store) ApplyCoupon(ctx context.Context, lineID, productID int64, code string) (Coupon, error) {
	ctx = s.logg.WithLineID(s.logg.WithOperation(ctx, string(OpApplyCoupon)), lineID)
	code = strings.TrimSpace(code)
	if code == "" {
		s.metrics.IncMutation(string(OpApplyCoupon), metrics.ResultInvalid)
		return Coupon{}, &OpError{Op: OpApplyCoupon, LineID: lineID, Kind: ErrCouponCodeRequired}
	}
	if _, err := s.findLine(lineID, productID); err != nil {
		s.metrics.IncMutation(string(OpApplyCoupon), metrics.ResultRejected)
		return Coupon{}, &OpError{Op: OpApplyCoupon, LineID: lineID, Kind: err}
	}

	s.metrics.MutationStarted()
	res, err := s.remote.ValidateCoupon(ctx, code, productID)
	s.metrics.MutationFinished()
	if err != nil {
		s.metrics.IncMutation(string(OpApplyCoupon), metrics.ResultRejected)
		kind := classifyCouponError(err)
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"coupon_error": kind.Error()}), "cart.apply_coupon.rejected")
		return Coupon{}, &OpError{Op: OpApplyCoupon, LineID: lineID, Kind: kind, Err: err}
	}

	discountType, err := enums.ParseDiscountType(res.Type)
	if err != nil || res.Discount.IsNegative() {
		if err == nil {
			err = fmt.Errorf("negative discount %s", res.Discount)
		}
		s.metrics.IncMutation(string(OpApplyCoupon), metrics.ResultRejected)
		cause := pkgerrors.Wrap(pkgerrors.CodeMalformedPayload, err, "unusable coupon response")
		return Coupon{}, &OpError{Op: OpApplyCoupon, LineID: lineID, Kind: ErrCouponUnknown, Err: cause}
	}

	coupon := Coupon{Code: code, DiscountValue: res.Discount, DiscountType: discountType}
	if _, _, err := s.mutateLine(lineID, productID, func(l *Line) {
		c := coupon
		l.AppliedCoupon = &c
	}); err != nil {
		s.metrics.IncMutation(string(OpApplyCoupon), metrics.ResultRejected)
		return Coupon{}, &OpError{Op: OpApplyCoupon, LineID: lineID, Kind: err}
	}

	s.confirm(ctx, OpApplyCoupon, false)
	return coupon, nil
}

func classifyCouponError(err error) error {
	switch backend.StatusOf(err) {
	case 404:
		return ErrCouponNotFound
	case 400:
		return ErrCouponNotApplicable
	default:
		return ErrCouponUnknown
	}
}

// RemoveCoupon detaches the coupon locally. Coupons are not reserved
// server-side, so there is nothing to call.
func (s *Store) RemoveCoupon(ctx context.Context, lineID int64) error {
	ctx = s.logg.WithLineID(s.logg.WithOperation(ctx, string(OpRemoveCoupon)), lineID)

	s.mu.Lock()
	idx := s.snap.indexOf(lineID)
	if idx < 0 {
		s.mu.Unlock()
		return &OpError{Op: OpRemoveCoupon, LineID: lineID, Kind: ErrLineNotFound}
	}
	s.snap.Lines[idx].AppliedCoupon = nil
	persisted := s.snap.clone()
	s.mu.Unlock()

	s.logg.Info(ctx, "cart.remove_coupon")
	s.persist(ctx, persisted)
	s.publish(events.TopicCartChanged, OpRemoveCoupon)
	return nil
}

// AddProduct creates a line remotely. The new line id is only known after a
// reload, so the cart is always reloaded on success.
func (s *Store) AddProduct(ctx context.Context, productID int64, quantity int) error {
	ctx = s.logg.WithProductID(s.logg.WithOperation(ctx, string(OpAddProduct)), productID)
	if quantity < 1 {
		s.metrics.IncMutation(string(OpAddProduct), metrics.ResultInvalid)
		return &OpError{Op: OpAddProduct, Kind: ErrInvalidQuantity}
	}

	s.metrics.MutationStarted()
	err := s.remote.AddProduct(ctx, productID, quantity)
	s.metrics.MutationFinished()
	if err != nil {
		s.metrics.IncMutation(string(OpAddProduct), metrics.ResultRejected)
		s.logg.Error(ctx, "cart.add_product.failed", err)
		return &OpError{Op: OpAddProduct, Err: err}
	}

	s.confirm(ctx, OpAddProduct, true)
	return nil
}

// Clear empties the snapshot after a successful checkout.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.snap = Snapshot{Lines: []Line{}, LoadedAt: s.now().UTC()}
	persisted := s.snap.clone()
	s.mu.Unlock()

	s.persist(ctx, persisted)
	s.publish(events.TopicCartChanged, "clear")
}

func (s *Store) confirm(ctx context.Context, op Op, reload bool) {
	s.metrics.IncMutation(string(op), metrics.ResultConfirmed)
	s.logg.Info(ctx, fmt.Sprintf("cart.%s.confirmed", op))
	s.publish(events.TopicCartUpdated, op)
	if reload {
		if err := s.Load(ctx); err != nil {
			s.logg.Warn(ctx, "cart.reload_after_mutation.failed")
		}
		return
	}
	s.persist(ctx, s.Snapshot())
}

func (s *Store) findLine(lineID, productID int64) (Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.snap.indexOf(lineID)
	if idx < 0 || s.snap.Lines[idx].ProductID != productID {
		return Line{}, ErrLineNotFound
	}
	return s.snap.Lines[idx].clone(), nil
}

// mutateLine applies fn to the line and returns the previous value with its index.
func (s *Store) mutateLine(lineID, productID int64, fn func(*Line)) (Line, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.snap.indexOf(lineID)
	if idx < 0 || s.snap.Lines[idx].ProductID != productID {
		return Line{}, -1, ErrLineNotFound
	}
	prev := s.snap.Lines[idx].clone()
	fn(&s.snap.Lines[idx])
	return prev, idx, nil
}

// rollbackLine restores prev without touching other lines: in place when the
// line is still present, otherwise reinserted at its original index.
func (s *Store) rollbackLine(prev Line, idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur := s.snap.indexOf(prev.ID); cur >= 0 {
		s.snap.Lines[cur] = prev
		return
	}
	if idx < 0 || idx > len(s.snap.Lines) {
		idx = len(s.snap.Lines)
	}
	s.snap.Lines = append(s.snap.Lines, Line{})
	copy(s.snap.Lines[idx+1:], s.snap.Lines[idx:])
	s.snap.Lines[idx] = prev
}

func (s *Store) persist(ctx context.Context, snap Snapshot) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		s.logg.Error(ctx, "cart.snapshot.encode_failed", err)
		return
	}
	if err := s.cache.SaveCartSnapshot(ctx, s.cacheKey, payload, s.cacheTTL); err != nil {
		s.logg.Warn(ctx, "cart.snapshot.save_failed")
	}
}

func (s *Store) publish(topic events.Topic, op Op) {
	if s.events == nil {
		return
	}
	s.events.Publish(topic, string(op))
}
