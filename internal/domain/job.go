package domain

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// JobRequest carries the inputs of one try-on generation.
type JobRequest struct {
	ModelImage   string `json:"model_image"`
	GarmentImage string `json:"garment_image"`
	Category     string `json:"category"`
}

// Validate reports whether both image references are present.
func (r JobRequest) Validate() error {
	if strings.TrimSpace(r.ModelImage) == "" {
		return InvalidRequestError("model_image is required")
	}
	if strings.TrimSpace(r.GarmentImage) == "" {
		return InvalidRequestError("garment_image is required")
	}
	return nil
}

var categoryFolder = cases.Fold()

// NormalizeCategory trims and case-folds a garment category. It never
// substitutes a default; callers decide what an empty category means.
func NormalizeCategory(category string) string {
	category = strings.TrimSpace(category)
	if category == "" {
		return ""
	}
	return categoryFolder.String(category)
}

// JobHandle identifies a remote job once it has been accepted.
type JobHandle struct {
	ID string `json:"id"`
}

// JobPhase enumerates the remote lifecycle of a job.
type JobPhase string

const (
	JobPhaseStarting   JobPhase = "starting"
	JobPhaseQueued     JobPhase = "in_queue"
	JobPhaseProcessing JobPhase = "processing"
	JobPhaseCompleted  JobPhase = "completed"
	JobPhaseFailed     JobPhase = "failed"
)

// ParseJobPhase maps a wire status onto a JobPhase. Unknown values are
// treated as still processing.
func ParseJobPhase(raw string) JobPhase {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "starting":
		return JobPhaseStarting
	case "in_queue", "queued", "pending":
		return JobPhaseQueued
	case "completed", "succeeded":
		return JobPhaseCompleted
	case "failed", "canceled", "cancelled":
		return JobPhaseFailed
	default:
		return JobPhaseProcessing
	}
}

// Terminal reports whether no further status change is expected.
func (p JobPhase) Terminal() bool {
	return p == JobPhaseCompleted || p == JobPhaseFailed
}

// JobStatus is one snapshot of a remote job.
type JobStatus struct {
	ID           string   `json:"id"`
	Phase        JobPhase `json:"phase"`
	Outputs      []string `json:"outputs,omitempty"`
	ErrorMessage string   `json:"error,omitempty"`
}

// NewJobStatus builds a snapshot that honors the status invariants: outputs
// only on completion, an error message only on failure.
func NewJobStatus(id string, phase JobPhase, outputs []string, errMsg string) JobStatus {
	status := JobStatus{ID: id, Phase: phase}
	if msg := strings.TrimSpace(errMsg); msg != "" {
		status.Phase = JobPhaseFailed
		status.ErrorMessage = msg
		return status
	}
	if phase == JobPhaseCompleted {
		for _, out := range outputs {
			if out = strings.TrimSpace(out); out != "" {
				status.Outputs = append(status.Outputs, out)
			}
		}
	}
	return status
}

// Terminal reports whether polling should stop at this snapshot. A populated
// error message is terminal whatever the phase says.
func (s JobStatus) Terminal() bool {
	return s.ErrorMessage != "" || s.Phase.Terminal()
}

// DescribeImageRef shortens inline data URIs for logs and persistence.
func DescribeImageRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if !strings.HasPrefix(ref, "data:") {
		return ref
	}
	header, payload, found := strings.Cut(ref, ",")
	if !found {
		return "data:(malformed)"
	}
	return header + ",(" + strconv.Itoa(len(payload)) + " bytes)"
}
