package middleware

import (
	"bytes"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// statusRecorder keeps the status code and, for server errors, the body.
type statusRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status >= http.StatusInternalServerError {
		r.body.Write(b)
	}
	return r.ResponseWriter.Write(b)
}

// BasicLogger logs every request at debug level and every server error at
// error level.
func BasicLogger(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("uri", r.RequestURI),
				zap.String("host", r.Host),
				zap.String("remote", r.RemoteAddr))

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status >= http.StatusInternalServerError {
				logger.Error("error handling request",
					zap.String("method", r.Method),
					zap.String("uri", r.RequestURI),
					zap.Int("status", rec.status),
					zap.String("error", string(bytes.TrimSpace(rec.body.Bytes()))))
			}
		})
	}
}
