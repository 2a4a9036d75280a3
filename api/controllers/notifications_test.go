package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agroconexion/storefront-sync/internal/backend"
	"github.com/agroconexion/storefront-sync/internal/notifications"
	"github.com/agroconexion/storefront-sync/pkg/enums"
	pkgerrors "github.com/agroconexion/storefront-sync/pkg/errors"
)

type stubFeed struct {
	items     []backend.Notification
	state     enums.StreamState
	deleteErr error
	markErr   error
	reloadErr error
	deleted   []int64
	marked    int
	reloaded  int
}

func (s *stubFeed) Items() []backend.Notification { return s.items }

func (s *stubFeed) UnreadCount() int {
	n := 0
	for _, item := range s.items {
		if item.Read == nil || !*item.Read {
			n++
		}
	}
	return n
}

func (s *stubFeed) State() enums.StreamState { return s.state }

func (s *stubFeed) Delete(_ context.Context, id int64) error {
	s.deleted = append(s.deleted, id)
	return s.deleteErr
}

func (s *stubFeed) MarkAllRead(context.Context) error {
	s.marked++
	return s.markErr
}

func (s *stubFeed) Reload(context.Context) error {
	s.reloaded++
	if s.reloadErr != nil {
		return s.reloadErr
	}
	s.state = enums.StreamStateReady
	return nil
}

type feedEnvelope struct {
	Data  notificationsResponse `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeFeed(t *testing.T, resp *httptest.ResponseRecorder) feedEnvelope {
	t.Helper()
	var env feedEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func TestListNotificationsReady(t *testing.T) {
	read := true
	feed := &stubFeed{state: enums.StreamStateReady, items: []backend.Notification{
		{ID: 3, Type: "order", Message: "c"},
		{ID: 2, Type: "order", Message: "b", Read: &read},
		{ID: 1, Type: "order", Message: "a"},
	}}
	handler := ListNotifications(feed, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/notifications?limit=2", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	env := decodeFeed(t, resp)
	if len(env.Data.Items) != 2 || env.Data.Items[0].ID != 3 {
		t.Fatalf("unexpected items %+v", env.Data.Items)
	}
	if env.Data.Unread != 2 || env.Data.Total != 3 {
		t.Fatalf("unexpected counts unread=%d total=%d", env.Data.Unread, env.Data.Total)
	}
	if env.Data.Message != "" {
		t.Fatalf("expected no status message, got %q", env.Data.Message)
	}
}

func TestListNotificationsStateMessages(t *testing.T) {
	tests := []struct {
		state   enums.StreamState
		message string
	}{
		{enums.StreamStateLoading, "Cargando notificaciones"},
		{enums.StreamStateUnauthenticated, "Inicia sesión para ver tus notificaciones"},
		{enums.StreamStateLoadFailed, "Error al cargar notificaciones."},
		{enums.StreamStateReady, "No tienes notificaciones aún"},
	}
	for _, tt := range tests {
		handler := ListNotifications(&stubFeed{state: tt.state}, nil)

		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, withLocale(httptest.NewRequest(http.MethodGet, "/api/notifications", nil), "es-CO"))

		env := decodeFeed(t, resp)
		if env.Data.Message != tt.message {
			t.Fatalf("%s: unexpected message %q", tt.state, env.Data.Message)
		}
		if env.Data.Items == nil {
			t.Fatalf("%s: expected empty items array", tt.state)
		}
	}
}

func TestListNotificationsRejectsBadLimit(t *testing.T) {
	handler := ListNotifications(&stubFeed{}, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/notifications?limit=0", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestDeleteNotification(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{name: "deleted", status: http.StatusOK},
		{name: "missing", err: fmt.Errorf("delete: %w", notifications.ErrNotificationNotFound), status: http.StatusNotFound, message: "The notification does not exist."},
		{name: "backend down", err: pkgerrors.New(pkgerrors.CodeTransient, "timeout"), status: http.StatusServiceUnavailable, message: "Error deleting the notification."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := &stubFeed{state: enums.StreamStateReady, deleteErr: tt.err}
			handler := DeleteNotification(feed, nil)

			req := withLocale(withURLParam(httptest.NewRequest(http.MethodDelete, "/api/notifications/5", nil), "id", "5"), "en")
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)

			if resp.Code != tt.status {
				t.Fatalf("expected %d got %d", tt.status, resp.Code)
			}
			if len(feed.deleted) != 1 || feed.deleted[0] != 5 {
				t.Fatalf("unexpected deletes %v", feed.deleted)
			}
			if tt.err != nil {
				if env := decodeFeed(t, resp); env.Error.Message != tt.message {
					t.Fatalf("unexpected message %q", env.Error.Message)
				}
			}
		})
	}
}

func TestMarkAllNotificationsRead(t *testing.T) {
	feed := &stubFeed{state: enums.StreamStateReady}
	handler := MarkAllNotificationsRead(feed, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/notifications/read-all", nil))
	if resp.Code != http.StatusOK || feed.marked != 1 {
		t.Fatalf("expected mark-all-read, got status=%d marked=%d", resp.Code, feed.marked)
	}

	feed.markErr = pkgerrors.New(pkgerrors.CodeUnauthorized, "expired")
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/notifications/read-all", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestReloadNotifications(t *testing.T) {
	feed := &stubFeed{state: enums.StreamStateLoadFailed, reloadErr: fmt.Errorf("loading notifications: %w", pkgerrors.New(pkgerrors.CodeTransient, "boom"))}
	handler := ReloadNotifications(feed, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/notifications/reload", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
	env := decodeFeed(t, resp)
	if env.Error.Code != string(pkgerrors.CodeTransient) {
		t.Fatalf("expected transient code got %q", env.Error.Code)
	}

	feed.reloadErr = nil
	feed.items = []backend.Notification{{ID: 4, Type: "order", Message: "hola"}}
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/notifications/reload", nil))
	if resp.Code != http.StatusOK || feed.reloaded != 2 {
		t.Fatalf("expected reload, got status=%d reloaded=%d", resp.Code, feed.reloaded)
	}
	env = decodeFeed(t, resp)
	if env.Data.State != enums.StreamStateReady || env.Data.Total != 1 {
		t.Fatalf("unexpected feed %+v", env.Data)
	}
}
