package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики выполнения DAG.
var (
	// ExecutionsStarted — количество запущенных выполнений DAG.
	ExecutionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conveyor_executions_started_total",
		Help: "Number of DAG executions started.",
	})

	// ExecutionsFinished — завершённые выполнения по терминальному состоянию.
	ExecutionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_executions_finished_total",
		Help: "Number of DAG executions finished, by terminal state.",
	}, []string{"state"})

	// EngineEvents — обработанные события движка по типу.
	EngineEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_engine_events_total",
		Help: "Number of engine events processed, by event type.",
	}, []string{"type"})

	// ExecutionDuration — длительность выполнения DAG в секундах.
	ExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "conveyor_execution_duration_seconds",
		Help:    "Wall-clock duration of DAG executions.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	})
)
