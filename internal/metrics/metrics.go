// Package metrics exposes task and reload counters on a dedicated registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	taskRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "frontpipe",
		Name:      "task_runs_total",
		Help:      "Task runs by task name and outcome.",
	}, []string{"task", "outcome"})

	taskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "frontpipe",
		Name:      "task_duration_seconds",
		Help:      "Task run duration.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"task"})

	filesWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "frontpipe",
		Name:      "files_written_total",
		Help:      "Files written by tasks and the scaffold routine.",
	}, []string{"task"})

	watchTriggers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "frontpipe",
		Name:      "watch_triggers_total",
		Help:      "File system events that matched a watch rule.",
	}, []string{"rule"})

	reloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "frontpipe",
		Name:      "reloads_total",
		Help:      "Reload signals sent to clients.",
	}, []string{"kind"})
)

func init() {
	Registry.MustRegister(taskRuns, taskDuration, filesWritten, watchTriggers, reloads)
}

// ObserveTask records one run of task.
func ObserveTask(task string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	taskRuns.WithLabelValues(task, outcome).Inc()
	taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

func FileWritten(task string) {
	filesWritten.WithLabelValues(task).Inc()
}

func WatchTriggered(rule string) {
	watchTriggers.WithLabelValues(rule).Inc()
}

func Reloaded(kind string) {
	reloads.WithLabelValues(kind).Inc()
}

// Handler serves the registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
