package controllers

import (
	"net/http"

	"github.com/angelmondragon/licensesync/api/responses"
	"github.com/angelmondragon/licensesync/internal/scheduler"
)

// SyncStatusSource reports a point-in-time snapshot of the sync loop.
type SyncStatusSource interface {
	Status() scheduler.Status
}

// SyncStatus exposes the loop snapshot for dashboards: when the next cycle
// fires, the watermark it will export from, and how the last cycle went.
func SyncStatus(source SyncStatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, source.Status())
	}
}
