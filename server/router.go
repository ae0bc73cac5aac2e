package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ebogdum/vizgate/auth"
	"github.com/ebogdum/vizgate/backends"
	"github.com/ebogdum/vizgate/check"
	"github.com/ebogdum/vizgate/config"
	"github.com/ebogdum/vizgate/files"
	"github.com/ebogdum/vizgate/metrics"
	"github.com/ebogdum/vizgate/server/handlers"
	gatewayMiddleware "github.com/ebogdum/vizgate/server/middleware"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	gate *auth.Gate,
	checker *check.Checker,
	helper *files.Helper,
	compressor *files.Compressor,
	sink backends.Sink,
	limiter *gatewayMiddleware.ClientRateLimiter,
	serverConfig *config.ServerConfig,
	logger *zap.Logger,
) chi.Router {
	timeout := serverConfig.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(gatewayMiddleware.V1RequestIDMiddleware())
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(gatewayMiddleware.V1SecurityHeaders())
	r.Use(requestLogger(logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handlers.SendErrorResponse(w, logger, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handlers.SendErrorResponse(w, logger, http.StatusMethodNotAllowed, "method not allowed")
	})

	// Outside the gate
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		handlers.SendJSONResponse(w, logger, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	standard := gatewayMiddleware.V1GateMiddleware(gate, auth.AccessStandard, logger)
	shared := gatewayMiddleware.V1GateMiddleware(gate, auth.AccessShared, logger)
	ignore := gatewayMiddleware.V1GateMiddleware(gate, auth.AccessIgnore, logger)

	r.Route("/v1", func(r chi.Router) {
		r.With(ignore).Get("/ping", handlers.V1Ping(logger))

		r.With(standard).Get("/identity", handlers.V1Identity(logger))
		r.With(shared).Get("/share/identity", handlers.V1Identity(logger))

		r.With(shared).Get("/check/{kind}", handlers.V1CheckName(checker, logger))

		r.Route("/files", func(r chi.Router) {
			r.Use(gatewayMiddleware.V1BodyLimitMiddleware(serverConfig.MaxUploadSize))
			r.Use(standard)

			r.With(gatewayMiddleware.V1RateLimitMiddleware(limiter, logger)).
				Post("/", handlers.V1UploadFile(helper, compressor, logger))
			r.Delete("/", handlers.V1DeleteFile(helper, logger))
			r.Get("/download", handlers.V1DownloadFile(helper, logger))
			r.Post("/archive", handlers.V1CreateArchive(helper, sink, logger))
		})
	})

	return r
}

// requestLogger records request metrics by route pattern and logs each request
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			route := routePattern(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())

			logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Duration("duration", duration),
				zap.String("request_id", gatewayMiddleware.RequestID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr))
		})
	}
}

// routePattern keeps metric labels bounded by using the matched chi pattern
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
