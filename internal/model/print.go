package model

import "time"

// PrintStatus describes the outcome of rendering one page.
type PrintStatus string

const (
	PrintStatusComplete   PrintStatus = "complete"
	PrintStatusIncomplete PrintStatus = "incomplete"
	PrintStatusFailed     PrintStatus = "failed"
	PrintStatusMerged     PrintStatus = "merged"
)

// PrintRecord is the audit entry written for every artifact a run produces.
type PrintRecord struct {
	RunID     string      `json:"run_id"`
	Round     string      `json:"round,omitempty"`
	GroupKey  string      `json:"group_key"`
	Path      string      `json:"path"`
	Status    PrintStatus `json:"status"`
	Detail    string      `json:"detail,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
