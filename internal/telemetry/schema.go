package telemetry

import "github.com/prometheus/client_golang/prometheus"

const namespace = "powerstatd"

// gauges is the exported metric set. Report keys become label values so the
// series set follows whatever collectors the machine has.
type gauges struct {
	values    *prometheus.GaugeVec
	fields    *prometheus.GaugeVec
	elapsed   prometheus.Gauge
	published prometheus.Gauge
}

func newGauges() *gauges {
	return &gauges{
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "report_value",
			Help:      "Residency percentage or weighted average from the latest report.",
		}, []string{"key"}),
		fields: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "report_field",
			Help:      "Non-numeric report entries, always 1, value carried in a label.",
		}, []string{"key", "value"}),
		elapsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "report_elapsed_seconds",
			Help:      "Interval covered by the latest report.",
		}),
		published: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "report_timestamp_seconds",
			Help:      "Unix time the latest report was published.",
		}),
	}
}

func (g *gauges) collectors() []prometheus.Collector {
	return []prometheus.Collector{g.values, g.fields, g.elapsed, g.published}
}
