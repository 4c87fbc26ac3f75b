package controllers

import (
	"net/http"

	"github.com/angelmondragon/licensesync/api/responses"
	"github.com/angelmondragon/licensesync/pkg/config"
	"github.com/angelmondragon/licensesync/pkg/db"
	pkgerrors "github.com/angelmondragon/licensesync/pkg/errors"
	"github.com/angelmondragon/licensesync/pkg/logger"
)

// Healthz reports whether the worker can reach its database. The sync loop
// is useless without it, so a failed ping turns the probe red.
func Healthz(cfg *config.Config, logg *logger.Logger, dbP db.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-LicenseSync-Env", cfg.App.Env)
		if err := dbP.Ping(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unreachable"))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}
