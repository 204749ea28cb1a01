package httpserver

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"barefoot_sync/internal/adapters/observability"
)

func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return http.TimeoutHandler(next, d, "timeout") }
}

// AdminToken rejects requests whose bearer token does not match. An empty
// token disables the check.
func AdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		want := []byte(token)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="barefoot-admin"`)
				writeProblem(w, http.StatusUnauthorized, "Unauthorized", "admin token required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// routePattern is the matched chi pattern, so /v1/properties/{id} is one
// label rather than one per id. Only known after the router ran.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		observability.ObserveHTTP(routePattern(r), r.Method, status(ww), time.Since(start))
	})
}

// Logger writes one line per request. 5xx log at error, 4xx at warn.
func Logger(l zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			code := status(ww)
			ev := l.Info()
			switch {
			case code >= 500:
				ev = l.Error()
			case code >= 400:
				ev = l.Warn()
			}
			ev.Str("route", routePattern(r)).
				Str("method", r.Method).
				Int("status", code).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", chimw.GetReqID(r.Context())).
				Str("remote", remoteHost(r)).
				Bool("admin", strings.HasPrefix(r.URL.Path, "/v1/admin/")).
				Msg("http_request")
		})
	}
}

func status(ww chimw.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}

// remoteHost strips the port. RealIP has already applied the forwarding
// headers to RemoteAddr.
func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
