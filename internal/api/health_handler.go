package api

import (
	"net/http"

	"github.com/voicetransl/voicetransl-api/internal/api/shared"
)

// Health handles GET /health.
func Health(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "healthy", Version: version})
	}
}
