package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agroconexion/storefront-sync/internal/backend"
	"github.com/agroconexion/storefront-sync/internal/events"
	"github.com/agroconexion/storefront-sync/pkg/auth"
	"github.com/agroconexion/storefront-sync/pkg/config"
	"github.com/agroconexion/storefront-sync/pkg/enums"
	pkgerrors "github.com/agroconexion/storefront-sync/pkg/errors"
	"github.com/agroconexion/storefront-sync/pkg/logger"
	"github.com/agroconexion/storefront-sync/pkg/metrics"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
)

var (
	ErrMalformedPush        = errors.New("malformed push payload")
	ErrNotificationNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	ErrAlreadyStarted       = errors.New("notification stream already started")
	ErrStreamClosed         = errors.New("notification stream closed")
)

// Remote is the backend surface for the notification list.
type Remote interface {
	ListNotifications(ctx context.Context) ([]backend.Notification, error)
	DeleteNotification(ctx context.Context, id int64) error
	MarkAllNotificationsRead(ctx context.Context) error
}

type Options struct {
	Remote       Remote
	Dialer       Dialer
	Tokens       auth.TokenSource
	Push         config.PushConfig
	MarkReadSync bool
	Events       events.Publisher
	Metrics      *metrics.SyncMetrics
	Logger       *logger.Logger
	Now          func() time.Time
}

type pushEnvelope struct {
	Data *backend.Notification `json:"data"`
}

// Stream merges the initial notification list with the live push channel.
type Stream struct {
	remote   Remote
	dialer   Dialer
	tokens   auth.TokenSource
	push     config.PushConfig
	syncRead bool
	events   events.Publisher
	metrics  *metrics.SyncMetrics
	logg     *logger.Logger
	now      func() time.Time

	mu       sync.RWMutex
	feed     Feed
	state    enums.StreamState
	starting bool
	closed   bool
	lifetime context.Context
	cancel   context.CancelFunc
	closeErr error
	wg       sync.WaitGroup

	// ids deleted while a list fetch is in flight; nil when no fetch runs
	deletedDuringLoad map[int64]struct{}
}

func NewStream(opts Options) (*Stream, error) {
	if opts.Remote == nil {
		return nil, fmt.Errorf("notifications remote required")
	}
	if opts.Tokens == nil {
		return nil, fmt.Errorf("token source required")
	}
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Stream{
		remote:   opts.Remote,
		dialer:   opts.Dialer,
		tokens:   opts.Tokens,
		push:     opts.Push,
		syncRead: opts.MarkReadSync,
		events:   opts.Events,
		metrics:  opts.Metrics,
		logg:     logg,
		now:      now,
		state:    enums.StreamStateIdle,
	}, nil
}

// Start fetches the initial list and, in parallel, opens the push channel.
// The push loop lives until ctx is done or Close is called. A missing or
// expired token moves the stream to the unauthenticated state without any
// remote call; a 401 from the list does the same. Start may be called again
// once the stream is load_failed or unauthenticated.
func (s *Stream) Start(ctx context.Context) error {
	return s.begin(ctx, ctx, false)
}

// Reload fetches the list again. From load_failed or unauthenticated it also
// reopens the push channel, which keeps the lifetime of the first Start.
// From ready only the list is refreshed.
func (s *Stream) Reload(ctx context.Context) error {
	s.mu.RLock()
	lifetime := s.lifetime
	s.mu.RUnlock()
	if lifetime == nil {
		lifetime = context.WithoutCancel(ctx)
	}
	return s.begin(ctx, lifetime, true)
}

func (s *Stream) begin(ctx, lifetime context.Context, refresh bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	if s.starting || (s.state == enums.StreamStateReady && !refresh) {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	reopen := s.state != enums.StreamStateReady
	s.starting = true
	s.lifetime = lifetime
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.starting = false
		s.deletedDuringLoad = nil
		s.mu.Unlock()
	}()

	ctx = s.logg.WithOperation(ctx, "notifications.start")
	token, ok := s.usableToken(ctx)
	if !ok {
		s.stopPush()
		s.setState(enums.StreamStateUnauthenticated)
		s.logg.Warn(ctx, "notifications.start.no_token")
		return nil
	}

	if reopen {
		s.stopPush()
		s.mu.Lock()
		s.state = enums.StreamStateLoading
		s.mu.Unlock()
		s.startPush(lifetime, token)
	}
	s.mu.Lock()
	s.deletedDuringLoad = make(map[int64]struct{})
	s.mu.Unlock()

	items, err := s.remote.ListNotifications(ctx)
	if err != nil {
		if pkgerrors.IsUnauthorized(err) {
			s.stopPush()
			s.setState(enums.StreamStateUnauthenticated)
			s.logg.Warn(ctx, "notifications.list.unauthorized")
			return nil
		}
		if reopen {
			s.setState(enums.StreamStateLoadFailed)
		}
		s.logg.Error(ctx, "notifications.list.failed", err)
		return fmt.Errorf("loading notifications: %w", err)
	}

	s.mu.Lock()
	s.feed.Seed(withoutIDs(items, s.deletedDuringLoad))
	if s.state == enums.StreamStateLoading {
		s.state = enums.StreamStateReady
	}
	s.mu.Unlock()
	s.publish("load")
	return nil
}

func withoutIDs(items []backend.Notification, skip map[int64]struct{}) []backend.Notification {
	if len(skip) == 0 {
		return items
	}
	kept := make([]backend.Notification, 0, len(items))
	for _, n := range items {
		if _, ok := skip[n.ID]; ok {
			continue
		}
		kept = append(kept, n)
	}
	return kept
}

func (s *Stream) startPush(lifetime context.Context, token string) {
	if s.dialer == nil {
		return
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(lifetime))
	context.AfterFunc(lifetime, cancel)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return
	}
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(runCtx, token)
	}()
}

// stopPush cancels the running push loop and waits for it to exit.
func (s *Stream) stopPush() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Stream) usableToken(ctx context.Context) (string, bool) {
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		if !errors.Is(err, auth.ErrNoToken) {
			s.logg.Error(ctx, "notifications.token.lookup_failed", err)
		}
		return "", false
	}
	return token, auth.Usable(token, s.now())
}

func (s *Stream) newBackoff() retry.Backoff {
	base := s.push.ReconnectBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxDelay := s.push.ReconnectMax
	if maxDelay < base {
		maxDelay = base
	}
	b := retry.NewExponential(base)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithCappedDuration(maxDelay, b)
	return retry.WithMaxRetries(s.push.ReconnectAttempts, b)
}

// run keeps the push channel open, reconnecting with bounded backoff. The
// retry budget resets after every connection that was established.
func (s *Stream) run(ctx context.Context, token string) {
	backoff := s.newBackoff()
	for {
		connected, err := s.connectOnce(ctx, token)
		if ctx.Err() != nil {
			return
		}
		if pkgerrors.IsUnauthorized(err) {
			s.setState(enums.StreamStateUnauthenticated)
			s.logg.Warn(ctx, "notifications.push.unauthorized")
			return
		}
		if connected {
			backoff = s.newBackoff()
		}

		delay, stop := backoff.Next()
		if stop {
			s.logg.Error(ctx, "notifications.push.gave_up", err)
			return
		}
		s.metrics.IncReconnect()
		s.logg.Warn(s.logg.WithField(ctx, "retry_in", delay.String()), "notifications.push.reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		fresh, ok := s.usableToken(ctx)
		if !ok {
			s.setState(enums.StreamStateUnauthenticated)
			s.logg.Warn(ctx, "notifications.push.token_expired")
			return
		}
		token = fresh
	}
}

func (s *Stream) connectOnce(ctx context.Context, token string) (bool, error) {
	conn, err := s.dialer.Dial(ctx, token)
	if err != nil {
		return false, err
	}
	s.logg.Info(ctx, "notifications.push.connected")

	stop := make(chan struct{})
	closed := make(chan error, 1)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		closed <- conn.Close()
	}()

	for {
		payload, readErr := conn.ReadMessage()
		if readErr != nil {
			close(stop)
			if closeErr := <-closed; closeErr != nil && ctx.Err() != nil {
				s.mu.Lock()
				s.closeErr = multierr.Append(s.closeErr, closeErr)
				s.mu.Unlock()
			}
			if ctx.Err() == nil {
				s.logg.Warn(s.logg.WithField(ctx, "reason", readErr.Error()), "notifications.push.disconnected")
			}
			return true, readErr
		}
		s.HandleMessage(ctx, payload)
	}
}

// HandleMessage applies one push payload. Malformed payloads are logged and
// dropped; duplicates leave the feed unchanged.
func (s *Stream) HandleMessage(ctx context.Context, payload []byte) error {
	n, err := decodePush(payload)
	if err != nil {
		s.metrics.IncPush(metrics.PushMalformed)
		s.logg.Warn(s.logg.WithField(ctx, "reason", err.Error()), "notifications.push.malformed")
		return err
	}

	s.mu.Lock()
	added := s.feed.Prepend(n)
	s.mu.Unlock()
	if !added {
		s.metrics.IncPush(metrics.PushDuplicate)
		s.logg.Debug(s.logg.WithNotificationID(ctx, n.ID), "notifications.push.duplicate")
		return nil
	}
	s.metrics.IncPush(metrics.PushAccepted)
	s.publish("push")
	return nil
}

func decodePush(payload []byte) (backend.Notification, error) {
	var env pushEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return backend.Notification{}, fmt.Errorf("%w: %v", ErrMalformedPush, err)
	}
	if env.Data == nil {
		return backend.Notification{}, fmt.Errorf("%w: missing data", ErrMalformedPush)
	}
	if err := env.Data.Validate(); err != nil {
		return backend.Notification{}, fmt.Errorf("%w: %v", ErrMalformedPush, err)
	}
	return *env.Data, nil
}

// Delete removes a notification optimistically and rolls it back into its
// original position when the backend refuses.
func (s *Stream) Delete(ctx context.Context, id int64) error {
	ctx = s.logg.WithNotificationID(s.logg.WithOperation(ctx, "notifications.delete"), id)

	s.mu.Lock()
	removed, idx, ok := s.feed.Remove(id)
	if ok && s.deletedDuringLoad != nil {
		s.deletedDuringLoad[id] = struct{}{}
	}
	s.mu.Unlock()
	if !ok {
		return ErrNotificationNotFound
	}
	s.publish("delete")

	if err := s.remote.DeleteNotification(ctx, id); err != nil {
		s.mu.Lock()
		s.feed.Insert(removed, idx)
		if s.deletedDuringLoad != nil {
			delete(s.deletedDuringLoad, id)
		}
		s.mu.Unlock()
		s.logg.Error(ctx, "notifications.delete.rolled_back", err)
		s.publish("delete")
		return err
	}
	s.logg.Info(ctx, "notifications.delete.confirmed")
	return nil
}

// MarkAllRead flags every notification read; when syncing is enabled the
// change is persisted and rolled back on failure. A backend without the
// endpoint (404) keeps the local flip.
func (s *Stream) MarkAllRead(ctx context.Context) error {
	ctx = s.logg.WithOperation(ctx, "notifications.mark_all_read")

	s.mu.Lock()
	previous := s.feed.MarkAllRead()
	s.mu.Unlock()
	s.publish("mark_all_read")

	if !s.syncRead {
		return nil
	}
	if err := s.remote.MarkAllNotificationsRead(ctx); err != nil {
		if pkgerrors.CodeOf(err) == pkgerrors.CodeNotFound {
			s.logg.Warn(ctx, "notifications.mark_all_read.unsupported")
			return nil
		}
		s.mu.Lock()
		s.feed.RestoreRead(previous)
		s.mu.Unlock()
		s.logg.Error(ctx, "notifications.mark_all_read.rolled_back", err)
		s.publish("mark_all_read")
		return err
	}
	return nil
}

func (s *Stream) Items() []backend.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feed.Items()
}

func (s *Stream) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feed.UnreadCount()
}

func (s *Stream) State() enums.StreamState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Stream) setState(state enums.StreamState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Close stops the push loop and reports errors from closing connections.
func (s *Stream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stopPush()

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.closeErr
	s.closeErr = nil
	return err
}

func (s *Stream) publish(op string) {
	if s.events == nil {
		return
	}
	s.events.Publish(events.TopicNotificationsChanged, op)
}
