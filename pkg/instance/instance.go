package instance

import (
	"os"

	"github.com/google/uuid"
)

// GetID returns the worker instance identifier. Deployments set WORKER_ID;
// the random fallback keeps overlapping workers distinguishable in logs.
func GetID() string {
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	return "sync-" + uuid.NewString()[:8]
}
