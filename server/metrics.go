package server

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for the HTTP layer and media delivery.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	resolutions     *prometheus.CounterVec
	candidatesTried prometheus.Histogram
	repairs         *prometheus.CounterVec
}

// MustNewMetrics registers the collectors with reg. Collectors that are
// already registered are reused, so building several servers against the
// same registry is fine.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackshelf",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		},
		[]string{"route", "method", "code"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trackshelf",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Time until the handler returned, by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	resolutions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackshelf",
			Subsystem: "media",
			Name:      "resolutions_total",
			Help:      "Media key resolutions by outcome (exact, legacy-timestamp, listing, not_found, error).",
		},
		[]string{"kind"},
	)
	candidatesTried := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "trackshelf",
			Subsystem: "media",
			Name:      "candidates_tried",
			Help:      "Candidate keys attempted per successful resolution.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		},
	)
	repairs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackshelf",
			Subsystem: "media",
			Name:      "path_repairs_total",
			Help:      "Track path write-backs by outcome.",
		},
		[]string{"outcome"},
	)

	collectors := []prometheus.Collector{requests, requestDuration, resolutions, candidatesTried, repairs}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			already, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				panic(err)
			}
			switch collector {
			case requests:
				requests = already.ExistingCollector.(*prometheus.CounterVec)
			case requestDuration:
				requestDuration = already.ExistingCollector.(*prometheus.HistogramVec)
			case resolutions:
				resolutions = already.ExistingCollector.(*prometheus.CounterVec)
			case candidatesTried:
				candidatesTried = already.ExistingCollector.(prometheus.Histogram)
			case repairs:
				repairs = already.ExistingCollector.(*prometheus.CounterVec)
			}
		}
	}

	return &Metrics{
		requests:        requests,
		requestDuration: requestDuration,
		resolutions:     resolutions,
		candidatesTried: candidatesTried,
		repairs:         repairs,
	}
}

// ObserveResolution records how a media key was resolved. tried is ignored
// for failed resolutions.
func (m *Metrics) ObserveResolution(kind string, tried int) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(kind).Inc()
	if tried > 0 {
		m.candidatesTried.Observe(float64(tried))
	}
}

// ObserveRepair records a path write-back outcome.
func (m *Metrics) ObserveRepair(outcome string) {
	if m == nil {
		return
	}
	m.repairs.WithLabelValues(outcome).Inc()
}

// Middleware counts requests by route template.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working behind the middleware.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
