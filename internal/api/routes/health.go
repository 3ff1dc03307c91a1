package routes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"Xcrol/internal/api/handlers"
)

// Pinger reports whether a backing store is reachable. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RegisterHealthRoutes registers GET /health. A nil pinger (memory store)
// always reports ok.
func RegisterHealthRoutes(r chi.Router, db Pinger) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				slog.Error("[HEALTH] database ping failed", "error", err)
				status, code = "unavailable", http.StatusServiceUnavailable
			}
		}

		handlers.WriteJSON(w, code, map[string]string{"status": status})
	})
}
