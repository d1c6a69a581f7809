package types

import "time"

// EvalMessage is the SQS payload sent from the API (or sweeper fan-out) to the
// evaluation worker. One message evaluates one project.
type EvalMessage struct {
	BatchID     string     `json:"batch_id"`
	TraceID     string     `json:"trace_id"`
	ProjectID   string     `json:"project_id"`
	Reason      EvalReason `json:"reason"`
	RequestedAt time.Time  `json:"requested_at"`

	// SpecificTaskIDs restricts evaluation to only these tasks. Empty means
	// evaluate every eligible task in the project. Used for targeted re-checks
	// after a manual threshold edit.
	SpecificTaskIDs []string `json:"specific_task_ids,omitempty"`
}
