package api

import (
	"context"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const traceHeader = "X-Trace-ID"

// requestScope is what Trace attaches to a request's context.
type requestScope struct {
	traceID string
	logger  *zap.Logger
}

type scopeKey struct{}

// Trace gives every request a trace id, reusing the caller's X-Trace-ID
// when it looks sane, and a logger already tagged with it.
func Trace(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(traceHeader)
			if id == "" || len(id) > 64 {
				id = uuid.NewString()
			}
			w.Header().Set(traceHeader, id)
			scope := &requestScope{traceID: id, logger: logger.With(zap.String("trace_id", id))}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), scopeKey{}, scope)))
		})
	}
}

// TraceIDFrom returns the id Trace assigned, or "" outside a traced request.
func TraceIDFrom(ctx context.Context) string {
	if scope, ok := ctx.Value(scopeKey{}).(*requestScope); ok {
		return scope.traceID
	}
	return ""
}

func requestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if scope, ok := ctx.Value(scopeKey{}).(*requestScope); ok {
		return scope.logger
	}
	return fallback
}

// Observe logs one line per request and turns handler panics into a JSON
// 500. When the handler already sent headers the connection is left as is.
func Observe(fallback *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			logger := requestLogger(r.Context(), fallback)

			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("Handler panicked", zap.Any("panic", rec), zap.Stack("stack"))
					if ww.Status() == 0 {
						writeJSON(ww, http.StatusInternalServerError, errorResponse{
							Error:   "Internal server error",
							TraceID: TraceIDFrom(r.Context()),
						})
					}
				}
				logger.Info("Request completed",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// CORS allows the listed origins. "*" allows any origin; an empty list
// sends no CORS headers at all.
func CORS(allowed []string) func(http.Handler) http.Handler {
	origins := map[string]struct{}{}
	for _, o := range allowed {
		origins[o] = struct{}{}
	}
	_, allowAll := origins["*"]

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || len(origins) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if _, ok := origins[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			} else {
				http.Error(w, "CORS origin denied", http.StatusForbidden)
				return
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Trace-ID")
			w.Header().Set("Access-Control-Expose-Headers", "X-Download-ID, X-Trace-ID, Content-Disposition")

			// Preflight
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
