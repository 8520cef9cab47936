package convert

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hazyhaar/mdconv/docmodel"
)

// Metrics holds the Prometheus collectors of the conversion service. A nil
// *Metrics records nothing.
type Metrics struct {
	DocumentsSubmitted *prometheus.CounterVec
	DocumentsFinished  *prometheus.CounterVec
	ConversionDuration *prometheus.HistogramVec
	StageDuration      *prometheus.HistogramVec
	JobsInFlight       prometheus.Gauge
	OCRFailures        prometheus.Counter
	ImagesExtracted    prometheus.Counter
	SQLDuration        *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DocumentsSubmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mdconv_documents_submitted_total",
				Help: "Documents accepted for conversion",
			},
			[]string{"type"},
		),
		DocumentsFinished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mdconv_documents_finished_total",
				Help: "Documents that reached a terminal status",
			},
			[]string{"type", "status"},
		),
		ConversionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mdconv_conversion_duration_seconds",
				Help:    "Wall time from processing start to terminal status",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"type"},
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mdconv_stage_duration_seconds",
				Help:    "Duration of each pipeline stage",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		JobsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "mdconv_jobs_in_flight",
				Help: "Documents currently being converted",
			},
		),
		OCRFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "mdconv_ocr_failures_total",
				Help: "Images the OCR engine could not process",
			},
		),
		ImagesExtracted: f.NewCounter(
			prometheus.CounterOpts{
				Name: "mdconv_images_extracted_total",
				Help: "Images saved from uploaded documents",
			},
		),
		SQLDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mdconv_sql_duration_seconds",
				Help:    "Store statement latency, from the tracing driver",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"op", "result"},
		),
	}
}

// ObserveSQL records one traced statement. Its signature matches
// trace.Observer.
func (m *Metrics) ObserveSQL(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SQLDuration.WithLabelValues(op, result).Observe(d.Seconds())
}

func (m *Metrics) submitted(t docmodel.SourceType) {
	if m == nil {
		return
	}
	m.DocumentsSubmitted.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) finished(t docmodel.SourceType, status docmodel.Status, d time.Duration) {
	if m == nil {
		return
	}
	m.DocumentsFinished.WithLabelValues(string(t), string(status)).Inc()
	m.ConversionDuration.WithLabelValues(string(t)).Observe(d.Seconds())
}

func (m *Metrics) stage(name string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

func (m *Metrics) inFlight(delta float64) {
	if m == nil {
		return
	}
	m.JobsInFlight.Add(delta)
}

func (m *Metrics) ocrFailed(*docmodel.OCREngineError) {
	if m == nil {
		return
	}
	m.OCRFailures.Inc()
}

func (m *Metrics) images(n int) {
	if m == nil {
		return
	}
	m.ImagesExtracted.Add(float64(n))
}
