package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lapweather"

// Metrics holds the counters and histograms for one analysis run. Each
// instance has its own registry.
type Metrics struct {
	registry *prometheus.Registry

	WeatherFetchLatency prometheus.Histogram
	WeatherFetches      *prometheus.CounterVec // labels: status={ok,network,decode}
	ForecastRows        prometheus.Gauge

	LapsJoined    prometheus.Gauge
	LapsClustered prometheus.Gauge
	LapsExcluded  prometheus.Gauge
	NoiseLaps     prometheus.Gauge

	StageDuration *prometheus.HistogramVec // labels: stage
	Summaries     *prometheus.CounterVec   // labels: provider, outcome={ok,error,skipped}
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		WeatherFetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "weather_fetch_latency_seconds",
			Help:      "Forecast API call latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		WeatherFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_fetches_total",
			Help:      "Forecast API calls by status.",
		}, []string{"status"}),
		ForecastRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "forecast_rows",
			Help:      "Hourly forecast rows inside the horizon.",
		}),
		LapsJoined: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "laps_joined",
			Help:      "Laps joined with weather.",
		}),
		LapsClustered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "laps_clustered",
			Help:      "Laps with complete features that received cluster labels.",
		}),
		LapsExcluded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "laps_excluded",
			Help:      "Laps left unlabelled because a feature was missing.",
		}),
		NoiseLaps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dbscan_noise_laps",
			Help:      "Laps labelled as DBSCAN noise.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		Summaries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_total",
			Help:      "Strategy summary requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
	}

	m.registry.MustRegister(
		m.WeatherFetchLatency,
		m.WeatherFetches,
		m.ForecastRows,
		m.LapsJoined,
		m.LapsClustered,
		m.LapsExcluded,
		m.NoiseLaps,
		m.StageDuration,
		m.Summaries,
	)
	return m
}

// ObserveStage records how long a stage took since start.
func (m *Metrics) ObserveStage(stage string, start, end time.Time) {
	m.StageDuration.WithLabelValues(stage).Observe(end.Sub(start).Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes every metric in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
