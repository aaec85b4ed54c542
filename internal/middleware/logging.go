package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// responseRecorder captures the status code and payload size for the
// request log.
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// requestMeta is installed by RequestLogger and filled in by RequireAuth
// once the caller is resolved, so the completed-request line can name the
// acting member and household even though authentication happens further
// down the chain.
type requestMeta struct {
	memberID    string
	householdID string
}

type metaKey struct{}

func annotate(ctx context.Context, memberID, householdID string) {
	if m, ok := ctx.Value(metaKey{}).(*requestMeta); ok {
		m.memberID = memberID
		m.householdID = householdID
	}
}

// RequestLogger logs each request once it completes, leveled by outcome.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			meta := &requestMeta{}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), metaKey{}, meta)))

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int("bytes", rec.bytes),
				slog.String("remote", RealIP(r)),
			}
			if meta.memberID != "" {
				attrs = append(attrs,
					slog.String("member", meta.memberID),
					slog.String("household", meta.householdID),
				)
			}

			switch {
			case rec.status >= 500:
				logger.LogAttrs(r.Context(), slog.LevelError, "request", attrs...)
			case rec.status >= 400:
				logger.LogAttrs(r.Context(), slog.LevelWarn, "request", attrs...)
			default:
				logger.LogAttrs(r.Context(), slog.LevelInfo, "request", attrs...)
			}
		})
	}
}
