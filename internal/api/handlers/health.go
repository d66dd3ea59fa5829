package handlers

import (
	"context"
	"net/http"
	"time"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// HealthHandler reports liveness and database reachability
func HealthHandler(database any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok", Database: "unknown"}

		if p, ok := database.(pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := p.Ping(ctx); err != nil {
				resp.Status = "degraded"
				resp.Database = "unreachable"
				sendJSON(w, http.StatusServiceUnavailable, resp)
				return
			}
			resp.Database = "ok"
		}

		sendJSON(w, http.StatusOK, resp)
	}
}
