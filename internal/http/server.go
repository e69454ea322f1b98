// Package http exposes the resolver over a small JSON API alongside health and metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"audiolink/internal/core"
	"audiolink/internal/flood"
	"audiolink/pkg/streamlink"
)

const (
	shutdownTimeout = 10 * time.Second
	serviceName     = "audiolink"
	kindBadRequest  = "bad_request"
	kindRateLimited = "rate_limited"
)

// Resolver is the service behind the API.
type Resolver interface {
	Resolve(ctx context.Context, url string) (*streamlink.Song, error)
	Providers() []string
	Ready() bool
}

type Server struct {
	config  *core.ServerConfig
	logger  *zap.Logger
	server  *http.Server
	metrics *Metrics
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type providersResponse struct {
	Providers []string `json:"providers"`
}

// routeOptions holds the request policies taken from ServerConfig.
type routeOptions struct {
	limiter        *flood.Limiter
	resolveTimeout time.Duration

	// trustProxy takes the client address from X-Forwarded-For / X-Real-IP. Only enable it behind
	// a proxy that overwrites those headers, otherwise clients can pick their own rate limit key.
	trustProxy bool
}

func NewServer(
	config *core.ServerConfig,
	logger *zap.Logger,
	resolver Resolver,
	metrics *Metrics,
	limiter *flood.Limiter,
) *Server {
	if metrics == nil {
		metrics = NewMetrics()
	}
	if limiter == nil {
		limiter = flood.NewLimiter(config.RateLimitPerMinute)
	}
	metrics.TrackLimiter(limiter)

	router := setupRoutes(logger, resolver, metrics, routeOptions{
		limiter:        limiter,
		resolveTimeout: config.ResolveTimeout,
		trustProxy:     config.TrustProxy,
	})

	return &Server{
		config:  config,
		logger:  logger,
		server:  createHTTPServer(config, router),
		metrics: metrics,
	}
}

func createHTTPServer(config *core.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           handler,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
	}
}

func setupRoutes(logger *zap.Logger, resolver Resolver, metrics *Metrics, opts routeOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if opts.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"` + serviceName + `"}`))
	})

	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !resolver.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"no providers","service":"` + serviceName + `"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready","service":"` + serviceName + `"}`))
	})

	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/providers", providersHandler(resolver, metrics))
		resolve := resolveHandler(logger, resolver, metrics, opts.resolveTimeout)
		if opts.limiter != nil {
			r.With(rateLimit(opts.limiter, metrics)).Get("/resolve", resolve)
		} else {
			r.Get("/resolve", resolve)
		}
	})

	r.Get("/", homeHandler(logger))

	return r
}

func providersHandler(resolver Resolver, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, providersResponse{Providers: resolver.Providers()})
		metrics.RecordRequest("providers", http.StatusOK)
	}
}

// resolveHandler answers /api/resolve. A positive timeout bounds the resolution so the error
// response is still written before the server's WriteTimeout.
func resolveHandler(logger *zap.Logger, resolver Resolver, metrics *Metrics, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawURL := r.URL.Query().Get("url")
		if rawURL == "" {
			respondJSON(w, http.StatusBadRequest, errorResponse{
				Error: "query parameter 'url' is required",
				Kind:  kindBadRequest,
			})
			metrics.RecordRequest("resolve", http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		song, err := resolver.Resolve(ctx, rawURL)
		if err != nil {
			status, kind := errorStatus(err)
			if status >= http.StatusInternalServerError {
				logger.Warn("Resolve request failed",
					zap.String("url", rawURL),
					zap.String("kind", kind),
					zap.Error(err))
			}
			respondJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
			metrics.RecordRequest("resolve", status)
			return
		}

		respondJSON(w, http.StatusOK, song)
		metrics.RecordRequest("resolve", http.StatusOK)
	}
}

// errorStatus maps a resolution error to an HTTP status and error kind.
func errorStatus(err error) (int, string) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, core.KindNetwork
	}

	kind := core.ErrorKind(err)
	switch kind {
	case core.KindUnsupportedLink:
		return http.StatusUnprocessableEntity, kind
	case core.KindNetwork, core.KindSchemaMismatch:
		return http.StatusBadGateway, kind
	default:
		return http.StatusInternalServerError, kind
	}
}

// rateLimit rejects clients that exceed the limiter's budget. Clients are keyed by remote IP,
// which is the proxy-reported address only when RealIP runs before it.
func rateLimit(limiter *flood.Limiter, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := r.RemoteAddr
			if host, _, err := net.SplitHostPort(client); err == nil {
				client = host
			}
			if !limiter.Allow(client) {
				w.Header().Set("Retry-After", "60")
				respondJSON(w, http.StatusTooManyRequests, errorResponse{
					Error: "too many requests",
					Kind:  kindRateLimited,
				})
				metrics.RecordRequest("resolve", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

func homeHandler(_ *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>AudioLink</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        .header { color: #333; }
        .endpoint { margin: 10px 0; }
        .endpoint a { text-decoration: none; color: #0066cc; }
        .endpoint a:hover { text-decoration: underline; }
    </style>
</head>
<body>
    <h1 class="header">AudioLink</h1>
    <p>Resolves SoundCloud and YouTube links into playable audio streams.</p>

    <h2>Endpoints</h2>
    <div class="endpoint"><a href="/api/resolve?url=">/api/resolve?url=...</a> - Resolve a song link</div>
    <div class="endpoint"><a href="/api/providers">/api/providers</a> - Active providers</div>
    <div class="endpoint"><a href="/metrics">Metrics</a> - Prometheus metrics</div>
    <div class="endpoint"><a href="/healthz">Health</a> - Health check</div>
    <div class="endpoint"><a href="/readyz">Ready</a> - Readiness check</div>
</body>
</html>`))
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}
