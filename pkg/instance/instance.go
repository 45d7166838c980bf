package instance

import (
	"os"

	"github.com/angelmondragon/vaccine-orders/pkg/env"
)

// GetID identifies the running process in logs: VOP_INSTANCE_ID, then the
// platform dyno name, then the hostname.
func GetID() string {
	fallback := "local"
	if host, err := os.Hostname(); err == nil && host != "" {
		fallback = host
	}
	return env.First(fallback, "VOP_INSTANCE_ID", "DYNO")
}
