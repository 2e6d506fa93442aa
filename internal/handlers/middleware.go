package handlers

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"storysage/internal/logging"
	"storysage/internal/metrics"
	"storysage/internal/security"
	"storysage/internal/service"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const DeviceContextKey ContextKey = "device"

// Middleware holds dependencies for middleware functions
type Middleware struct {
	devices *service.DeviceService
	limiter *security.RateLimiter
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewMiddleware creates a new middleware instance. limiter and m may be nil.
func NewMiddleware(devices *service.DeviceService, limiter *security.RateLimiter, m *metrics.Metrics, logger *zap.Logger) *Middleware {
	return &Middleware{
		devices: devices,
		limiter: limiter,
		metrics: m,
		logger:  logging.OrNop(logger),
	}
}

// RequireDevice requires a valid device bearer token. On routes with a
// {userId} path value the token subject must match it.
func (m *Middleware) RequireDevice(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			respondWithError(w, m.logger, http.StatusUnauthorized, ErrUnauthorized, "", nil)
			return
		}

		claims, err := m.devices.Authenticate(r.Context(), token)
		if err != nil {
			respondWithError(w, m.logger, http.StatusUnauthorized, ErrUnauthorized, "device authentication failed", err)
			return
		}

		if userID := r.PathValue("userId"); userID != "" && userID != claims.Subject {
			respondWithError(w, m.logger, http.StatusForbidden, ErrForbidden, "", nil)
			return
		}

		ctx := context.WithValue(r.Context(), DeviceContextKey, claims)
		next(w, r.WithContext(ctx))
	}
}

// RateLimit rejects clients that exceed the write rate.
func (m *Middleware) RateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.limiter != nil && !m.limiter.Allow(security.GetClientIP(r)) {
			w.Header().Set("Retry-After", "60")
			respondWithError(w, m.logger, http.StatusTooManyRequests, "Too many requests, please slow down", "", nil)
			return
		}
		next(w, r)
	}
}

// Logging logs every request and records request metrics.
func (m *Middleware) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		if m.metrics != nil {
			m.metrics.ObserveRequest(r.Method, route, rec.status, elapsed)
		}
		m.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", elapsed),
			zap.String("client", security.GetClientIP(r)))
	})
}

// GetDeviceFromContext retrieves the authenticated device claims
func GetDeviceFromContext(ctx context.Context) *security.DeviceClaims {
	claims, ok := ctx.Value(DeviceContextKey).(*security.DeviceClaims)
	if !ok {
		return nil
	}
	return claims
}

// bearerToken reads the Authorization header, falling back to the token
// query parameter used by WebSocket clients.
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the WebSocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
