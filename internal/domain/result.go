package domain

// RunStatus is the terminal status of a pipeline run. Gate failures are
// first-class outcomes, not errors.
type RunStatus string

const (
	StatusSuccess            RunStatus = "SUCCESS"
	StatusFailedPrecondition RunStatus = "FAILED_PRECONDITION"
	StatusError              RunStatus = "ERROR"
)

// PreconditionReason qualifies a FAILED_PRECONDITION result.
type PreconditionReason string

const (
	ReasonDataCoverageGap PreconditionReason = "DATA_COVERAGE_GAP"
	ReasonDataSLAFailed   PreconditionReason = "DATA_SLA_FAILED"
	ReasonHistoryDegraded PreconditionReason = "HISTORY_DEGRADED"
)

// RunResult is the single machine-readable outcome of a run, persisted as
// run_result.json on every termination path.
type RunResult struct {
	RunID   string             `json:"run_id"`
	Status  RunStatus          `json:"status"`
	Reason  PreconditionReason `json:"reason,omitempty"`
	ErrorID string             `json:"error_id,omitempty"`
	Details map[string]any     `json:"details,omitempty"`
}

// Succeeded reports whether the run completed with SUCCESS.
func (r *RunResult) Succeeded() bool { return r.Status == StatusSuccess }
