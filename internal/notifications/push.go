package notifications

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/agroconexion/storefront-sync/pkg/errors"
	"github.com/gorilla/websocket"
)

const pushPath = "/notificaciones/"

// Conn is one open push connection.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens push connections authenticated with token.
type Dialer interface {
	Dial(ctx context.Context, token string) (Conn, error)
}

// WebsocketDialer connects to the backend push channel.
type WebsocketDialer struct {
	BaseURL          string
	HandshakeTimeout time.Duration
}

// PushURL builds the channel address; the token travels as a query parameter.
func PushURL(base, token string) string {
	return strings.TrimRight(base, "/") + pushPath + "?token=" + url.QueryEscape(token)
}

func (d WebsocketDialer) Dial(ctx context.Context, token string) (Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}

	conn, resp, err := dialer.DialContext(ctx, PushURL(d.BaseURL, token), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			code := pkgerrors.FromStatus(resp.StatusCode)
			if code == "" {
				code = pkgerrors.CodeTransient
			}
			return nil, pkgerrors.Wrap(code, err, fmt.Sprintf("push handshake returned %d", resp.StatusCode)).
				WithDetails(pkgerrors.StatusDetails{Status: resp.StatusCode, Endpoint: "WS " + pushPath})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransient, err, "push dial failed")
	}
	return wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c wsConn) ReadMessage() ([]byte, error) {
	_, payload, err := c.conn.ReadMessage()
	return payload, err
}

func (c wsConn) Close() error {
	return c.conn.Close()
}
