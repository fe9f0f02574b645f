package generator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportformats_generate_total",
			Help: "Report format applications by outcome",
		},
		[]string{"outcome"},
	)

	generateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reportformats_generate_duration_seconds",
			Help:    "Duration of report format applications including dependencies",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"outcome"},
	)

	dependenciesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportformats_generate_dependencies_total",
			Help: "Dependency sub-reports by result",
		},
		[]string{"result"},
	)
)

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case ErrDependencyCycle.Is(err):
		return "cycle"
	default:
		return "error"
	}
}
