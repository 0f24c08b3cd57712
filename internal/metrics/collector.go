// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector records workflow engine metrics.
type Collector struct {
	workflowExecutionsTotal   *prometheus.CounterVec
	workflowExecutionDuration *prometheus.HistogramVec
	activeExecutions          *prometheus.GaugeVec

	nodeExecutionsTotal   *prometheus.CounterVec
	nodeExecutionDuration *prometheus.HistogramVec

	transitionsTotal          *prometheus.CounterVec
	conditionEvaluationsTotal *prometheus.CounterVec

	checkpointsTotal *prometheus.CounterVec
	forksTotal       *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers the engine metrics with reg. A nil reg uses
// the default Prometheus registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.workflowExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_executions_total",
			Help:      "Total number of workflow executions",
		},
		[]string{"workflow_id", "status"},
	)

	c.workflowExecutionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_execution_duration_seconds",
			Help:      "Workflow execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"workflow_id"},
	)

	c.activeExecutions = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflow_active_executions",
			Help:      "Number of currently running workflow executions",
		},
		[]string{"workflow_id"},
	)

	c.nodeExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Total number of node executions",
		},
		[]string{"workflow_id", "node_type", "status"},
	)

	c.nodeExecutionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_execution_duration_seconds",
			Help:      "Node execution duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"workflow_id", "node_type"},
	)

	c.transitionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of state transitions",
		},
		[]string{"workflow_id", "status"},
	)

	c.conditionEvaluationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "condition_evaluations_total",
			Help:      "Total number of edge condition evaluations",
		},
		[]string{"workflow_id", "satisfied"},
	)

	c.checkpointsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_total",
			Help:      "Total number of checkpoints created",
		},
		[]string{"source"},
	)

	c.forksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thread_forks_total",
			Help:      "Total number of thread fork attempts",
		},
		[]string{"strategy", "status"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordWorkflowExecution records a finished workflow run.
func (c *Collector) RecordWorkflowExecution(workflowID, status string, duration time.Duration) {
	c.workflowExecutionsTotal.WithLabelValues(workflowID, status).Inc()
	c.workflowExecutionDuration.WithLabelValues(workflowID).Observe(duration.Seconds())
}

// ExecutionStarted increments the active-execution gauge.
func (c *Collector) ExecutionStarted(workflowID string) {
	c.activeExecutions.WithLabelValues(workflowID).Inc()
}

// ExecutionFinished decrements the active-execution gauge.
func (c *Collector) ExecutionFinished(workflowID string) {
	c.activeExecutions.WithLabelValues(workflowID).Dec()
}

// RecordNodeExecution records one node run.
func (c *Collector) RecordNodeExecution(workflowID, nodeType, status string, duration time.Duration) {
	c.nodeExecutionsTotal.WithLabelValues(workflowID, nodeType, status).Inc()
	c.nodeExecutionDuration.WithLabelValues(workflowID, nodeType).Observe(duration.Seconds())
}

// RecordTransition records one state transition outcome.
func (c *Collector) RecordTransition(workflowID, status string) {
	c.transitionsTotal.WithLabelValues(workflowID, status).Inc()
}

// RecordConditionEvaluation records one edge condition evaluation.
func (c *Collector) RecordConditionEvaluation(workflowID string, satisfied bool) {
	label := "false"
	if satisfied {
		label = "true"
	}
	c.conditionEvaluationsTotal.WithLabelValues(workflowID, label).Inc()
}

// RecordCheckpoint records a checkpoint creation.
func (c *Collector) RecordCheckpoint(source string) {
	c.checkpointsTotal.WithLabelValues(source).Inc()
}

// RecordFork records a thread fork attempt.
func (c *Collector) RecordFork(strategy, status string) {
	c.forksTotal.WithLabelValues(strategy, status).Inc()
}
