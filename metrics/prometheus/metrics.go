// Package prometheus provides Prometheus metrics exporters for playbook executions.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "playbook"

var (
	// executionsActive is a gauge of currently active executions.
	executionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executions_active",
			Help:      "Number of currently active workflow executions",
		},
	)

	// executionDuration is a histogram of total execution duration.
	executionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Histogram of total workflow execution duration in seconds",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600, 14400, 86400},
		},
		[]string{"workflow", "status"},
	)

	// stepEntriesTotal is a counter of step entries.
	stepEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_entries_total",
			Help:      "Total number of step entries",
		},
		[]string{"workflow"},
	)

	// stepsSettledTotal is a counter of steps reaching a terminal disposition.
	stepsSettledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_settled_total",
			Help:      "Total number of steps settled, by disposition",
		},
		[]string{"workflow", "disposition"}, // disposition: completed, skipped, snoozed
	)

	// branchRoutesTotal is a counter of branch activations.
	branchRoutesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "branch_routes_total",
			Help:      "Total number of chat branch activations, by routing source",
		},
		[]string{"workflow", "source"}, // source: trigger, button, component, auto_advance, captured, entry
	)

	// triggerMatchesTotal is a counter of free-text trigger matches.
	triggerMatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_matches_total",
			Help:      "Total number of free-text trigger matches",
		},
		[]string{"workflow"},
	)

	// messagesTotal is a counter of transcript messages.
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Total number of transcript messages appended",
		},
		[]string{"workflow", "role"}, // role: user, assistant
	)

	// unknownActionsTotal is a counter of unrecognized branch actions.
	unknownActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_actions_total",
			Help:      "Total number of unrecognized branch actions ignored",
		},
		[]string{"workflow"},
	)

	// artifactsGeneratedTotal is a counter of emitted artifacts.
	artifactsGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_generated_total",
			Help:      "Total number of artifacts emitted",
		},
		[]string{"workflow", "type"},
	)

	// saveDuration is a histogram of snapshot write duration.
	saveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_save_duration_seconds",
			Help:      "Duration of snapshot writes in seconds",
			Buckets:   prometheus.DefBuckets, // .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10
		},
		[]string{"workflow"},
	)

	// savesTotal is a counter of snapshot writes.
	savesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_saves_total",
			Help:      "Total number of snapshot writes",
		},
		[]string{"workflow", "status"}, // status: success, error
	)

	// snapshotLoadsTotal is a counter of snapshot restores.
	snapshotLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_loads_total",
			Help:      "Total number of snapshot restores",
		},
		[]string{"workflow", "result"}, // result: fresh, stale
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		executionsActive,
		executionDuration,
		stepEntriesTotal,
		stepsSettledTotal,
		branchRoutesTotal,
		triggerMatchesTotal,
		messagesTotal,
		unknownActionsTotal,
		artifactsGeneratedTotal,
		saveDuration,
		savesTotal,
		snapshotLoadsTotal,
	}
)

// RecordExecutionStart records an execution becoming active.
func RecordExecutionStart() {
	executionsActive.Inc()
}

// RecordExecutionEnd records an execution leaving the active set.
func RecordExecutionEnd(workflow, status string, durationSeconds float64) {
	executionsActive.Dec()
	executionDuration.WithLabelValues(workflow, status).Observe(durationSeconds)
}

// RecordStepEntry records navigation onto a step.
func RecordStepEntry(workflow string) {
	stepEntriesTotal.WithLabelValues(workflow).Inc()
}

// RecordStepSettled records a step reaching a terminal disposition.
func RecordStepSettled(workflow, disposition string) {
	stepsSettledTotal.WithLabelValues(workflow, disposition).Inc()
}

// RecordBranchRoute records a chat branch activation.
func RecordBranchRoute(workflow, source string) {
	branchRoutesTotal.WithLabelValues(workflow, source).Inc()
}

// RecordTriggerMatch records a free-text trigger match.
func RecordTriggerMatch(workflow string) {
	triggerMatchesTotal.WithLabelValues(workflow).Inc()
}

// RecordMessage records a transcript message.
func RecordMessage(workflow, role string) {
	messagesTotal.WithLabelValues(workflow, role).Inc()
}

// RecordUnknownAction records an unrecognized branch action.
func RecordUnknownAction(workflow string) {
	unknownActionsTotal.WithLabelValues(workflow).Inc()
}

// RecordArtifact records an emitted artifact.
func RecordArtifact(workflow, artifactType string) {
	artifactsGeneratedTotal.WithLabelValues(workflow, artifactType).Inc()
}

// RecordSaveSuccess records an acknowledged snapshot write.
func RecordSaveSuccess(workflow string, durationSeconds float64) {
	saveDuration.WithLabelValues(workflow).Observe(durationSeconds)
	savesTotal.WithLabelValues(workflow, "success").Inc()
}

// RecordSaveFailure records a failed snapshot write.
func RecordSaveFailure(workflow string) {
	savesTotal.WithLabelValues(workflow, "error").Inc()
}

// RecordSnapshotLoad records a snapshot restore.
func RecordSnapshotLoad(workflow, result string) {
	snapshotLoadsTotal.WithLabelValues(workflow, result).Inc()
}
