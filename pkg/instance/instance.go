package instance

import (
	"os"

	"github.com/agroconexion/storefront-sync/pkg/env"
)

const defaultID = "storefront-0"

// GetID returns the process instance identifier: AGRO_INSTANCE_ID, then the
// hostname, then a fixed default.
func GetID() string {
	if id := env.First("", "AGRO_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return defaultID
}
