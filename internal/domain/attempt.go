package domain

import "time"

// Attempt records one start of a tracker and how it ended.
type Attempt struct {
	ID         string     `json:"id"`
	PanelID    string     `json:"panel_id"`
	JobID      string     `json:"job_id,omitempty"`
	Request    JobRequest `json:"request"`
	Phase      string     `json:"phase"`
	Result     string     `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Settled reports whether the attempt reached an outcome.
func (a Attempt) Settled() bool {
	return a.FinishedAt != nil
}
