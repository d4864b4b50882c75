package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// 答题尝试相关指标
	AttemptsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_attempts_started_total",
			Help: "Total number of activity attempts started",
		},
	)

	AttemptsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_attempts_submitted_total",
			Help: "Total number of activity attempts submitted, by resulting grading status",
		},
		[]string{"grading_status"},
	)

	AttemptsGraded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_attempts_graded_total",
			Help: "Total number of manual grading operations",
		},
	)

	AttemptRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_attempt_rejections_total",
			Help: "Attempt operations rejected by a guard, by reason",
		},
		[]string{"reason"},
	)

	NotificationsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_delivered_total",
			Help: "Notification delivery outcomes",
		},
		[]string{"status"},
	)

	NotificationSockets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_sockets_online",
			Help: "Number of websocket clients connected to this instance",
		},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			AttemptsStarted,
			AttemptsSubmitted,
			AttemptsGraded,
			AttemptRejections,
			NotificationsDelivered,
			NotificationSockets,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
