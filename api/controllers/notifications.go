package controllers

import (
	"context"
	"net/http"

	"github.com/agroconexion/storefront-sync/api/responses"
	"github.com/agroconexion/storefront-sync/api/validators"
	"github.com/agroconexion/storefront-sync/internal/backend"
	"github.com/agroconexion/storefront-sync/internal/i18n"
	"github.com/agroconexion/storefront-sync/pkg/enums"
	pkgerrors "github.com/agroconexion/storefront-sync/pkg/errors"
	"github.com/agroconexion/storefront-sync/pkg/logger"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// NotificationFeed is the live notification list.
type NotificationFeed interface {
	Items() []backend.Notification
	UnreadCount() int
	State() enums.StreamState
	Delete(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context) error
	Reload(ctx context.Context) error
}

type notificationsResponse struct {
	Items   []backend.Notification `json:"items"`
	Unread  int                    `json:"unread"`
	State   enums.StreamState      `json:"state"`
	Total   int                    `json:"total"`
	Message string                 `json:"status_message,omitempty"`
}

func newNotificationsResponse(ctx context.Context, feed NotificationFeed, limit int) notificationsResponse {
	items := feed.Items()
	resp := notificationsResponse{
		Unread: feed.UnreadCount(),
		State:  feed.State(),
		Total:  len(items),
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	if items == nil {
		items = []backend.Notification{}
	}
	resp.Items = items

	switch {
	case resp.State == enums.StreamStateLoading || resp.State == enums.StreamStateIdle:
		resp.Message = responses.Localize(ctx, i18n.KeyNotificationsLoading, "")
	case resp.State == enums.StreamStateUnauthenticated:
		resp.Message = responses.Localize(ctx, i18n.KeyNotificationsLogin, "")
	case resp.State == enums.StreamStateLoadFailed:
		resp.Message = responses.Localize(ctx, i18n.KeyNotificationsFailed, "")
	case resp.Total == 0:
		resp.Message = responses.Localize(ctx, i18n.KeyNotificationsEmpty, "")
	}
	return resp
}

// ListNotifications returns the newest-first feed with the unread count.
func ListNotifications(feed NotificationFeed, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if feed == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notification stream unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", defaultNotificationLimit, 1, maxNotificationLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newNotificationsResponse(r.Context(), feed, limit))
	}
}

// DeleteNotification removes one event locally and remotely.
func DeleteNotification(feed NotificationFeed, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if feed == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notification stream unavailable"))
			return
		}

		id, err := parseIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := feed.Delete(r.Context(), id); err != nil {
			key := MessageKey(err)
			if key == "" {
				key = i18n.KeyNotificationDeleteFail
			}
			responses.WriteErrorKey(r.Context(), logg, w, err, key)
			return
		}
		responses.WriteSuccess(w, newNotificationsResponse(r.Context(), feed, defaultNotificationLimit))
	}
}

// MarkAllNotificationsRead marks every event as read.
func MarkAllNotificationsRead(feed NotificationFeed, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if feed == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notification stream unavailable"))
			return
		}

		if err := feed.MarkAllRead(r.Context()); err != nil {
			writeError(w, r, logg, err)
			return
		}
		responses.WriteSuccess(w, newNotificationsResponse(r.Context(), feed, defaultNotificationLimit))
	}
}

// ReloadNotifications fetches the list again, reopening the push channel when
// the stream had failed or lacked a token.
func ReloadNotifications(feed NotificationFeed, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if feed == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notification stream unavailable"))
			return
		}

		if err := feed.Reload(r.Context()); err != nil {
			key := MessageKey(err)
			if key == "" {
				key = i18n.KeyNotificationsFailed
			}
			responses.WriteErrorKey(r.Context(), logg, w, err, key)
			return
		}
		responses.WriteSuccess(w, newNotificationsResponse(r.Context(), feed, defaultNotificationLimit))
	}
}
