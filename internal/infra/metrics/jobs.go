package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(jobsProcessedTotal, jobRequeuesTotal, jobQueueDepth, jobDurationSeconds)
}

var jobsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "interview_jobs_processed_total",
		Help: "Total number of interview jobs finished, labeled by terminal status.",
	},
	[]string{"status"}, // 'completed', 'failed'
)

var jobRequeuesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "interview_job_requeues_total",
		Help: "Jobs returned to pending by the timeout reaper.",
	},
)

var jobQueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "interview_job_queue_depth",
		Help: "Number of pending jobs waiting for a worker.",
	},
)

var jobDurationSeconds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "interview_job_duration_seconds",
		Help:    "Wall time from job claim to terminal status.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	},
)

func IncJob(status string) {
	jobsProcessedTotal.WithLabelValues(norm(status)).Inc()
}

func IncJobRequeue() { jobRequeuesTotal.Inc() }

func SetQueueDepth(n int) { jobQueueDepth.Set(float64(n)) }

func ObserveJobDuration(seconds float64) { jobDurationSeconds.Observe(seconds) }
