// Package metrics holds the Prometheus collectors of the backup service.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Jobs records dump and restore activity. It implements backup.Recorder.
type Jobs struct {
	started     *prometheus.CounterVec
	finished    *prometheus.CounterVec
	transferred *prometheus.CounterVec
	streams     prometheus.Gauge
}

func NewJobs(reg prometheus.Registerer) *Jobs {
	factory := promauto.With(reg)
	return &Jobs{
		started: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pgbackup_jobs_started_total",
			Help: "Dump and restore jobs started",
		}, []string{"kind", "initiator"}),
		finished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pgbackup_jobs_finished_total",
			Help: "Dump and restore jobs finished, by result",
		}, []string{"kind", "result"}),
		transferred: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pgbackup_bytes_transferred_total",
			Help: "Bytes streamed out of dump programs and into restore programs",
		}, []string{"direction"}),
		streams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pgbackup_temp_streams",
			Help: "Open client-pushed restore streams",
		}),
	}
}

// JobStarted counts a job. Initiators carrying a file name are reduced to
// their label.
func (j *Jobs) JobStarted(kind, initiator string) {
	label, _, _ := strings.Cut(initiator, ":")
	j.started.WithLabelValues(kind, label).Inc()
}

func (j *Jobs) JobFinished(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "err"
	}
	j.finished.WithLabelValues(kind, result).Inc()
}

func (j *Jobs) BytesTransferred(direction string, n int64) {
	if n > 0 {
		j.transferred.WithLabelValues(direction).Add(float64(n))
	}
}

func (j *Jobs) TempStreams(n int) {
	j.streams.Set(float64(n))
}
