package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/sledljivost/internal/db"
)

type healthResponse struct {
	Status        string `json:"status"`
	SchemaVersion uint   `json:"schema_version,omitempty"`
}

// Health handles GET /api/health by pinging the database and reporting the
// applied schema version. A dirty migration reports unavailable.
func Health(database *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := database.PingContext(ctx); err != nil {
			logger(r).Error().Err(err).Msg("health check failed")
			jsonResponse(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}

		version, dirty, err := db.SchemaVersion(database)
		if err != nil {
			logger(r).Error().Err(err).Msg("health check failed")
			jsonResponse(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}
		if dirty {
			logger(r).Error().Uint("schema_version", version).Msg("database schema is dirty")
			jsonResponse(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", SchemaVersion: version})
			return
		}

		jsonResponse(w, http.StatusOK, healthResponse{Status: "ok", SchemaVersion: version})
	}
}
