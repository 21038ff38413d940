package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ExchangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "civic_agent_exchange_duration_seconds",
			Help:    "End-to-end exchange processing duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"profile"},
	)

	ExchangeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civic_agent_exchange_total",
			Help: "Total number of exchanges processed",
		},
		[]string{"status"},
	)

	VerdictScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "civic_agent_verdict_score",
			Help:    "Per-dimension quality verdict scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
		[]string{"dimension"},
	)

	ImprovementRounds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "civic_agent_improvement_rounds",
			Help:    "Improvement rounds used per exchange",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		},
	)

	EscalationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civic_agent_escalations_total",
			Help: "Total exchanges escalated to human review",
		},
		[]string{"reason"},
	)

	RetrievalResultsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "civic_agent_retrieval_results_count",
			Help:    "Number of retrieved documents per exchange",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		},
	)

	ReviewQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "civic_agent_review_queue_depth",
			Help: "Number of review items currently pending",
		},
	)

	RegressionPassRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "civic_agent_regression_pass_rate",
			Help: "Pass rate of the most recent regression run",
		},
	)
)

func Init() {
	prometheus.MustRegister(ExchangeDuration)
	prometheus.MustRegister(ExchangeTotal)
	prometheus.MustRegister(VerdictScore)
	prometheus.MustRegister(ImprovementRounds)
	prometheus.MustRegister(EscalationsTotal)
	prometheus.MustRegister(RetrievalResultsCount)
	prometheus.MustRegister(ReviewQueueDepth)
	prometheus.MustRegister(RegressionPassRate)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
