package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(interviewTransitionsTotal, interviewBusyRejectionsTotal)
}

var interviewTransitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "interview_transitions_total",
		Help: "Interview state transitions, labeled by target state.",
	},
	[]string{"to"},
)

var interviewBusyRejectionsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "interview_busy_rejections_total",
		Help: "Messages rejected because the interview was still processing.",
	},
)

func IncInterviewTransition(to string) {
	interviewTransitionsTotal.WithLabelValues(norm(to)).Inc()
}

func IncBusyRejection() { interviewBusyRejectionsTotal.Inc() }
