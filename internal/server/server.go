package server

// HTTP server for battery charts
// Routes (chi):
//   GET  /                    device list
//   GET  /battery             chart page for a device
//   GET  /battery/fragment    bare chart <script> block
//   GET  /battery/chart.png   PNG snapshot
//   GET  /timeseries/data     JSON [[unix_ms, rssi, battery], ...]
//   POST /readings            checkin ingest
//   GET  /healthz, /metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"battery-chart/internal/features/batterychart"
	"battery-chart/internal/features/tg_charts"
	"battery-chart/internal/infra/log"
	"battery-chart/internal/readings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Store is the readings storage used by the handlers.
type Store interface {
	readings.Querier
	Append(ctx context.Context, rs ...readings.Reading) error
	Devices(ctx context.Context) ([]string, error)
	Latest(ctx context.Context, deviceID string) (readings.Reading, error)
}

// Settings - series window and thinning applied to chart requests
type Settings struct {
	PointLimit       int
	MinInterval      time.Duration
	MaxQueryInterval time.Duration
	Image            tg_charts.ImageOptions
}

func (s Settings) withDefaults() Settings {
	if s.PointLimit <= 0 {
		s.PointLimit = readings.DefaultPointLimit
	}
	if s.MaxQueryInterval <= 0 {
		s.MaxQueryInterval = readings.DefaultMaxQueryInterval
	}
	return s
}

type Server struct {
	store    Store
	renderer *batterychart.Renderer
	settings Settings
	metrics  *Metrics
	router   chi.Router
	now      func() time.Time
}

func New(store Store, renderer *batterychart.Renderer, settings Settings) *Server {
	s := &Server{
		store:    store,
		renderer: renderer,
		settings: settings.withDefaults(),
		metrics:  NewMetrics(),
		now:      time.Now,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/", s.handleDevices)
	r.Get("/battery", s.handleBatteryPage)
	r.Get("/battery/fragment", s.handleBatteryFragment)
	r.Get("/battery/chart.png", s.handleBatteryPNG)
	r.Get("/timeseries/data", s.handleTimeseriesData)
	r.Post("/readings", s.handleIngest)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", s.metrics.Handler())
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string, readHeaderTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.LogSuccess("Battery chart server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.LogInfo("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.LogSuccess("Server stopped")
	return nil
}

// logRequests logs every request/response pair and feeds the request metrics.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = log.GenerateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		log.LogRequest(requestID, r.Method, r.URL.Path, zap.String("query", r.URL.RawQuery))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		s.metrics.observeRequest(route, r.Method, status, time.Since(start))
		log.LogResponse(requestID, status, time.Since(start).Milliseconds(), zap.String("endpoint", route))
	})
}
