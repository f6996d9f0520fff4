package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/paulwinex/nas-monitor/internal/domain"
	"github.com/paulwinex/nas-monitor/internal/metrics"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type MetricService interface {
	Range(ctx context.Context, tier domain.Tier, filter domain.RangeFilter) ([]domain.Sample, error)
	Latest(ctx context.Context, deviceTypes []string) (map[string]map[string]float64, error)
	ListDevices(ctx context.Context) ([]domain.Device, error)
	SetDeviceEnabled(ctx context.Context, name string, enabled bool) (*domain.Device, error)
	CheckDBConnection(ctx context.Context) error
}

type HTTPServer struct {
	server  *http.Server
	service MetricService
	logger  *zap.Logger
}

func NewHTTPServer(addr string, service MetricService, logger *zap.Logger) *HTTPServer {
	router := mux.NewRouter()

	s := &HTTPServer{
		server: &http.Server{
			Addr:    addr,
			Handler: router,
		},
		service: service,
		logger:  logger,
	}

	router.Use(s.metricsMiddleware)
	router.Use(s.loggingMiddleware)

	// Маршруты
	router.HandleFunc("/health", s.healthCheck).Methods("GET")
	router.HandleFunc("/api/v1/metrics", s.getMetrics).Methods("GET")
	router.HandleFunc("/api/v1/latest", s.getLatest).Methods("GET")
	router.HandleFunc("/api/v1/devices", s.listDevices).Methods("GET")
	router.HandleFunc("/api/v1/devices/{name}", s.updateDevice).Methods("PATCH")

	// Метрики Prometheus
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return s
}

func (s *HTTPServer) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// responseWriter для отслеживания статус кода
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *HTTPServer) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}

		metrics.HTTPRequests.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("query", r.URL.RawQuery),
			zap.String("ip", r.RemoteAddr),
			zap.Int("status", rw.statusCode),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// envelope — единый формат ответов API
type envelope struct {
	Status string `json:"status"`
	Count  *int   `json:"count,omitempty"`
	Data   any    `json:"data"`
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *HTTPServer) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CheckDBConnection(r.Context()); err != nil {
		s.logger.Error("Health check failed", zap.Error(err))
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{Status: "healthy"})
}

func (s *HTTPServer) getMetrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	tier := domain.Tier(q.Get("tier"))
	if !tier.Valid() {
		http.Error(w, "tier must be raw, hourly or history", http.StatusBadRequest)
		return
	}

	filter := domain.RangeFilter{
		DeviceTypes: q["device_type"],
		DeviceNames: q["device_name"],
		Labels:      q["label"],
	}

	if hoursStr := q.Get("hours"); hoursStr != "" {
		hours, err := strconv.Atoi(hoursStr)
		if err != nil || hours <= 0 {
			http.Error(w, "hours must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.To = time.Now().UTC()
		filter.From = filter.To.Add(-time.Duration(hours) * time.Hour)
	} else {
		if fromStr := q.Get("from"); fromStr != "" {
			from, err := time.Parse(time.RFC3339, fromStr)
			if err != nil {
				http.Error(w, "invalid from time format", http.StatusBadRequest)
				return
			}
			filter.From = from
		}
		if toStr := q.Get("to"); toStr != "" {
			to, err := time.Parse(time.RFC3339, toStr)
			if err != nil {
				http.Error(w, "invalid to time format", http.StatusBadRequest)
				return
			}
			filter.To = to
		}
	}

	data, err := s.service.Range(r.Context(), tier, filter)
	if err != nil {
		s.logger.Error("Failed to query metrics range", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	count := len(data)
	s.writeJSON(w, http.StatusOK, envelope{Status: "success", Count: &count, Data: data})
}

func (s *HTTPServer) getLatest(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.Latest(r.Context(), r.URL.Query()["device_type"])
	if err != nil {
		s.logger.Error("Failed to query latest values", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{Status: "success", Data: data})
}

func (s *HTTPServer) listDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.service.ListDevices(r.Context())
	if err != nil {
		s.logger.Error("Failed to list devices", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	count := len(devices)
	s.writeJSON(w, http.StatusOK, envelope{Status: "success", Count: &count, Data: devices})
}

func (s *HTTPServer) updateDevice(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var payload struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Enabled == nil {
		http.Error(w, "body must contain boolean field 'enabled'", http.StatusBadRequest)
		return
	}

	device, err := s.service.SetDeviceEnabled(r.Context(), name, *payload.Enabled)
	if err != nil {
		s.logger.Error("Failed to update device", zap.String("device", name), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if device == nil {
		http.Error(w, "Device not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{Status: "success", Data: device})
}
