// Package api is the HTTP surface: rule management, event intake, health
// and metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel/trace"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/emit"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/metrics"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ratelimit"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/store"
)

// HeaderTenantID carries the tenant of every /api/v1 request.
const HeaderTenantID = "X-Tenant-ID"

const (
	tenantKey   = "tenant_id"
	serviceName = "bizflow"
)

// Server holds the dependencies for the API server.
type Server struct {
	backend        store.Backend
	emitter        *emit.Emitter
	limiter        *ratelimit.Limiter
	metrics        *metrics.Collector
	tracerProvider trace.TracerProvider
}

// Option configures a Server.
type Option func(*Server)

// WithLimiter rate limits POST /api/v1/events per client IP.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// WithMetrics exposes /metrics and counts rate limited requests.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Server) { s.metrics = m }
}

// WithTracerProvider overrides the global tracer provider for request spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) { s.tracerProvider = tp }
}

// NewServer creates a new Server.
func NewServer(backend store.Backend, emitter *emit.Emitter, opts ...Option) *Server {
	s := &Server{backend: backend, emitter: emitter}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Echo builds the router with middleware and every route mounted.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler

	var otelOpts []otelecho.Option
	if s.tracerProvider != nil {
		otelOpts = append(otelOpts, otelecho.WithTracerProvider(s.tracerProvider))
	}
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(otelecho.Middleware(serviceName, otelOpts...))
	e.Use(requestLogger())

	e.GET("/healthz", s.health)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	v1 := e.Group("/api/v1", requireTenant)
	v1.POST("/events", s.postEvent, s.rateLimit("events"))
	v1.GET("/rules", s.listRules)
	v1.POST("/rules", s.createRule)
	v1.GET("/rules/:id", s.getRule)
	v1.PUT("/rules/:id", s.replaceRule)
	v1.DELETE("/rules/:id", s.deleteRule)
	v1.POST("/rules/:id/active", s.setActive)
	return e
}

// ListenAndServe serves until ctx is cancelled, then shuts down within
// shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Echo(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown error", "error", err)
			return srv.Close()
		}
		slog.Info("http server stopped")
		return nil
	}
}

// health reports whether the store is reachable.
// (GET /healthz)
func (s *Server) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := s.backend.Ping(ctx); err != nil {
		slog.Warn("health check failed", "error", err)
		return NewProblem(http.StatusServiceUnavailable, "store unreachable")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// requireTenant rejects requests without an X-Tenant-ID header.
func requireTenant(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenant := c.Request().Header.Get(HeaderTenantID)
		if tenant == "" {
			return NewProblem(http.StatusBadRequest, HeaderTenantID+" header is required")
		}
		c.Set(tenantKey, tenant)
		return next(c)
	}
}

func tenantOf(c echo.Context) string {
	tenant, _ := c.Get(tenantKey).(string)
	return tenant
}

// rateLimit applies the limiter per client IP. A limiter failure lets the
// request through.
func (s *Server) rateLimit(route string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if s.limiter == nil {
				return next(c)
			}
			d, err := s.limiter.Allow(c.Request().Context(), c.RealIP())
			if err != nil {
				slog.Warn("rate limiter unavailable", "route", route, "error", err)
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				if s.metrics != nil {
					s.metrics.RateLimited(route)
				}
				secs := int(d.RetryAfter.Round(time.Second) / time.Second)
				if secs < 1 {
					secs = 1
				}
				h.Set("Retry-After", strconv.Itoa(secs))
				return NewProblem(http.StatusTooManyRequests, "Rate limit exceeded. Retry after the specified interval.")
			}
			return next(c)
		}
	}
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				slog.Warn("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			slog.Debug("request", attrs...)
			return nil
		},
	})
}
