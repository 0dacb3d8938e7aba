package api

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"

	"grimm.is/pfw/internal/i18n"
)

// requestInfo travels in the request context so inner handlers can name
// the matched route for the access log.
type requestInfo struct {
	id    string
	route string
}

type requestInfoKey struct{}

func requestInfoFrom(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(*requestInfo)
	return info
}

// requestID returns the id the access logger assigned to this request.
func requestID(r *http.Request) string {
	if info := requestInfoFrom(r.Context()); info != nil {
		return info.id
	}
	return ""
}

// accessLogWriter wraps http.ResponseWriter to capture the status code
type accessLogWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *accessLogWriter) WriteHeader(status int) {
	if rw.status == 0 {
		rw.status = status
	}
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *accessLogWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// Implement http.Flusher
func (rw *accessLogWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Implement http.Hijacker for websocket support
func (rw *accessLogWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	if rw.status == 0 {
		rw.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

// accessLogger logs every request and records API metrics.
func (s *Server) accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.clock.Now()

		info := &requestInfo{id: r.Header.Get("X-Request-ID")}
		if info.id == "" {
			info.id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", info.id)
		r = r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info))

		rw := &accessLogWriter{ResponseWriter: w}
		next.ServeHTTP(rw, r)
		if rw.status == 0 {
			rw.status = http.StatusOK
		}

		duration := s.clock.Since(start)
		route := info.route
		if route == "" {
			route = "other"
		} else if _, path, ok := strings.Cut(route, " "); ok {
			route = path
		}
		s.metrics.RecordAPIRequest(r.Method, route, rw.status, duration)

		if r.URL.Path == "/metrics" || r.URL.Path == "/healthz" {
			return
		}
		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"bytes", rw.size,
			"duration", duration.Round(time.Microsecond).String(),
			"client", getClientIP(r),
			"request_id", info.id,
		}
		switch {
		case rw.status >= 500:
			s.logger.Error("request", args...)
		case rw.status >= 400:
			s.logger.Warn("request", args...)
		default:
			s.logger.Info("request", args...)
		}
	})
}

// newCORS answers cross-origin requests. Empty origins allow all.
func newCORS(origins []string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete,
		},
		AllowedHeaders: []string{
			"Content-Type", "Authorization", "X-API-Key", "Accept-Language", "X-Request-ID",
		},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
		MaxAge:         600,
	})
}

// rateLimitMiddleware limits mutations per client address.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Enabled() || !isMutation(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		key := getClientIP(r)
		if !s.limiter.Allow(key) {
			wait := s.limiter.RetryAfter(key)
			secs := int(wait.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			s.metrics.RateLimited.WithLabelValues(r.Method).Inc()
			WriteErrorCtx(w, r, http.StatusTooManyRequests, "", i18n.MsgRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware requires a valid API key on mutations when keys are
// configured. Reads stay open.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.keys.Enabled() || !isMutation(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		name, ok := s.keys.Check(presentedKey(r))
		if !ok {
			s.metrics.AuthFailures.Inc()
			s.logger.Warn("rejected mutation", "method", r.Method, "path", r.URL.Path,
				"client", getClientIP(r), "request_id", requestID(r))
			w.Header().Set("WWW-Authenticate", `Bearer realm="pfw"`)
			WriteErrorCtx(w, r, http.StatusUnauthorized, "", i18n.MsgUnauthorized)
			return
		}
		r = r.WithContext(context.WithValue(r.Context(), keyNameKey{}, name))
		next.ServeHTTP(w, r)
	})
}

// maxBodyMiddleware limits the size of request bodies to prevent memory exhaustion.
func (s *Server) maxBodyMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip body limit for GET/HEAD/OPTIONS
			if maxBytes <= 0 || !isMutation(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			// Check Content-Length header first (fast path)
			if r.ContentLength > maxBytes {
				WriteErrorCtx(w, r, http.StatusRequestEntityTooLarge, "", i18n.MsgBodyTooLarge)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
