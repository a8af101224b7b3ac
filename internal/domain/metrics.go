package domain

import (
	"time"
)

// WorkflowMetrics summarizes the editorial pipeline for a dashboard
type WorkflowMetrics struct {
	TotalProducts        int                   `json:"totalProducts"`
	ByState              map[WorkflowState]int `json:"byState"`
	AverageTimeToPublish time.Duration         `json:"averageTimeToPublish"`
	RejectionRate        float64               `json:"rejectionRate"`
	GeneratedAt          time.Time             `json:"generatedAt"`
}

// NewWorkflowMetrics creates an empty metrics snapshot
func NewWorkflowMetrics() *WorkflowMetrics {
	byState := make(map[WorkflowState]int, len(AllWorkflowStates))
	for _, s := range AllWorkflowStates {
		byState[s] = 0
	}
	return &WorkflowMetrics{
		ByState:     byState,
		GeneratedAt: time.Now().UTC(),
	}
}

// Observe adds one product to the snapshot
func (m *WorkflowMetrics) Observe(p *Product) {
	m.TotalProducts++
	m.ByState[p.WorkflowState]++
}

// CalculateTimeToPublish averages the durations between creation and publication
func (m *WorkflowMetrics) CalculateTimeToPublish(durations []time.Duration) {
	if len(durations) == 0 {
		return
	}

	var total time.Duration
	for _, d := range durations {
		total += d
	}
	m.AverageTimeToPublish = total / time.Duration(len(durations))
}

// CalculateRejectionRate is the share of review decisions that were rejections
func (m *WorkflowMetrics) CalculateRejectionRate(decisions, rejections int) {
	if decisions == 0 {
		return
	}
	m.RejectionRate = float64(rejections) / float64(decisions)
}
