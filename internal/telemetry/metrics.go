package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors exported by the edge agent.
type Metrics struct {
	pointsRead       prometheus.Counter
	pointsUploaded   prometheus.Counter
	pointsPurged     prometheus.Counter
	readErrors       prometheus.Counter
	writeErrors      prometheus.Counter
	mqttReconnects   prometheus.Counter
	actorRestarts    *prometheus.CounterVec
	mailboxDepth     *prometheus.GaugeVec
	readerInFlight   *prometheus.GaugeVec
	stagingBacklog   prometheus.Gauge
	memoryUsage      prometheus.Gauge
	pollDuration     prometheus.Histogram
	uploadDuration   prometheus.Histogram
	commandLatency   prometheus.Summary
}

// NewMetrics registers and returns the agent's metric set.
func NewMetrics() *Metrics {
	namespace := "bms_edge"

	return &Metrics{
		pointsRead: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_read_total",
			Help:      "Total number of BACnet point samples read from field controllers",
		}),
		pointsUploaded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_uploaded_total",
			Help:      "Total number of staging rows acknowledged by the broker",
		}),
		pointsPurged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_purged_total",
			Help:      "Total number of uploaded staging rows deleted by the cleaner",
		}),
		readErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bacnet_read_errors_total",
			Help:      "Total number of failed BACnet property reads",
		}),
		writeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bacnet_write_errors_total",
			Help:      "Total number of failed BACnet point writes",
		}),
		mqttReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_reconnects_total",
			Help:      "Total number of MQTT reconnect attempts",
		}),
		actorRestarts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actor_restarts_total",
			Help:      "Total number of actor restarts performed by the supervisor",
		}, []string{"actor"}),
		mailboxDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mailbox_depth",
			Help:      "Current number of buffered messages per mailbox",
		}, []string{"actor"}),
		readerInFlight: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reader_in_flight_operations",
			Help:      "Current number of in-flight BACnet operations per reader",
		}, []string{"reader_id"}),
		stagingBacklog: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "staging_backlog",
			Help:      "Number of staging rows awaiting upload as of the last uploader tick",
		}),
		memoryUsage: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_memory_bytes",
			Help:      "Resident memory used by the agent process",
		}),
		pollDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Duration of one full BACnet poll cycle across all controllers",
			Buckets:   prometheus.DefBuckets,
		}),
		uploadDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_cycle_duration_seconds",
			Help:      "Duration of one uploader drain cycle",
			Buckets:   prometheus.DefBuckets,
		}),
		commandLatency: promauto.NewSummary(prometheus.SummaryOpts{
			Namespace:  namespace,
			Name:       "command_round_trip_seconds",
			Help:       "Latency between a command request and its response message",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}),
	}
}

func (m *Metrics) RecordPointsRead(n int)     { m.pointsRead.Add(float64(n)) }
func (m *Metrics) RecordPointsUploaded(n int) { m.pointsUploaded.Add(float64(n)) }
func (m *Metrics) RecordPointsPurged(n int)   { m.pointsPurged.Add(float64(n)) }
func (m *Metrics) RecordReadError()           { m.readErrors.Inc() }
func (m *Metrics) RecordWriteError()          { m.writeErrors.Inc() }
func (m *Metrics) RecordMQTTReconnect()       { m.mqttReconnects.Inc() }

func (m *Metrics) RecordActorRestart(actor string) { m.actorRestarts.WithLabelValues(actor).Inc() }

func (m *Metrics) SetMailboxDepth(actor string, depth int) {
	m.mailboxDepth.WithLabelValues(actor).Set(float64(depth))
}

func (m *Metrics) SetReaderInFlight(readerID string, count int) {
	m.readerInFlight.WithLabelValues(readerID).Set(float64(count))
}

func (m *Metrics) SetStagingBacklog(n int)         { m.stagingBacklog.Set(float64(n)) }
func (m *Metrics) SetMemoryUsage(bytes uint64)     { m.memoryUsage.Set(float64(bytes)) }
func (m *Metrics) ObservePollDuration(s float64)   { m.pollDuration.Observe(s) }
func (m *Metrics) ObserveUploadDuration(s float64) { m.uploadDuration.Observe(s) }
func (m *Metrics) ObserveCommandLatency(s float64) { m.commandLatency.Observe(s) }
