package middleware

import (
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/voicetransl/voicetransl-api/internal/api/shared"
)

// TraceHeader carries the trace ID on every response.
const TraceHeader = "X-Trace-ID"

// TraceMiddleware adds a trace ID to the request context, reusing the chi
// request ID when one was assigned.
// It should run early so that every later handler can read the trace ID.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := shared.SetTraceID(r.Context(), chimw.GetReqID(r.Context()))
		traceID := shared.GetTraceID(ctx)
		w.Header().Set(TraceHeader, traceID)

		slog.Debug("request started",
			slog.String("trace_id", traceID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote_addr", r.RemoteAddr))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
