package api

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/agroconexion/storefront-sync/pkg/config"
)

const (
	serverName        = "storefront-sync"
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 60 * time.Second
)

// NewServer wraps the router in server-side tracing and the listen settings
// from cfg.
func NewServer(cfg config.AppConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           otelhttp.NewHandler(handler, serverName),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
}
