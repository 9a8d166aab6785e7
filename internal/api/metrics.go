package api

import (
	"net/http"
	"strconv"
	"time"

	"iot-monitor/internal/models"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	storeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_errors_total",
		Help: "Store failures absorbed by the dashboard, by operation",
	}, []string{"operation"})

	sensorOverloads = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sensor_overloads",
		Help: "1 if the sensor was overloaded in the last snapshot, 0 otherwise",
	}, []string{"sensor"})

	totalConsumption = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "total_consumption_watts",
		Help: "Total power of connected sensors in the last snapshot",
	})

	thresholdUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threshold_updates_total",
		Help: "Threshold updates by result",
	}, []string{"result"})
)

// instrument records request count and latency per route template.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			// Hijacked or empty response.
			status = http.StatusOK
		}

		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		requestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
		s.log.Debug("request",
			"id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration", time.Since(start))
	})
}

func observeSnapshot(snapshot models.SystemSnapshot) {
	totalConsumption.Set(snapshot.TotalConsumption)
	for _, s := range snapshot.Sensors {
		v := 0.0
		if s.IsOverload {
			v = 1
		}
		sensorOverloads.WithLabelValues(s.ID).Set(v)
	}
}
