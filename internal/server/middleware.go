package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"bridgefund/internal/logging"
	"bridgefund/internal/store"
)

// accessLog logs every response outside the 2xx range.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			status := ww.Status()
			if status >= 200 && status < 300 {
				return
			}
			logging.Get(logging.CategoryServer).With("req", middleware.GetReqID(r.Context())).
				Warn("%s %s -> %d (%dB) in %s", r.Method, r.URL.Path, status, ww.BytesWritten(), time.Since(start))
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// requireRole admits callers whose stored role equals role. The caller id
// comes from the identity provider header; client-supplied flags are never
// consulted.
func (s *Server) requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get(s.opts.UserHeader)
			if userID == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			got, err := s.directory.GetUserRole(r.Context(), userID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if got != role {
				logging.AuditWithRequest(middleware.GetReqID(r.Context())).AccessDenied(userID, r.URL.Path)
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
