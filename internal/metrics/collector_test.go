package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("weft", reg, nil)

	c.RecordWorkflowExecution("wf-1", "completed", 2*time.Second)
	c.RecordWorkflowExecution("wf-1", "completed", time.Second)
	c.RecordWorkflowExecution("wf-1", "failed", time.Second)
	c.RecordNodeExecution("wf-1", "tool", "completed", 50*time.Millisecond)
	c.RecordTransition("wf-1", "success")
	c.RecordConditionEvaluation("wf-1", true)
	c.RecordConditionEvaluation("wf-1", false)
	c.RecordCheckpoint("on_error")
	c.RecordFork("replay", "success")

	assert.Equal(t, 2.0, testutil.ToFloat64(
		c.workflowExecutionsTotal.WithLabelValues("wf-1", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		c.workflowExecutionsTotal.WithLabelValues("wf-1", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		c.nodeExecutionsTotal.WithLabelValues("wf-1", "tool", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		c.transitionsTotal.WithLabelValues("wf-1", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		c.conditionEvaluationsTotal.WithLabelValues("wf-1", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		c.checkpointsTotal.WithLabelValues("on_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		c.forksTotal.WithLabelValues("replay", "success")))
}

func TestCollector_ActiveExecutionsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("weft", reg, nil)

	c.ExecutionStarted("wf-1")
	c.ExecutionStarted("wf-1")
	assert.Equal(t, 2.0, testutil.ToFloat64(c.activeExecutions.WithLabelValues("wf-1")))

	c.ExecutionFinished("wf-1")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.activeExecutions.WithLabelValues("wf-1")))
}

func TestCollector_MetricNamesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("weft", reg, nil)
	c.RecordWorkflowExecution("wf-1", "completed", time.Second)
	c.RecordCheckpoint("manual")

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, fam := range families {
		names[fam.GetName()] = true
	}
	assert.True(t, names["weft_workflow_executions_total"])
	assert.True(t, names["weft_workflow_execution_duration_seconds"])
	assert.True(t, names["weft_checkpoints_total"])
}
