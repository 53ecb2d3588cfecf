package tryon

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tryon/internal/domain"
	"tryon/internal/infra"
)

// Phase is the user-facing state of a tracker.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhaseProcessing Phase = "processing"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// Settled reports whether the phase ends an attempt.
func (p Phase) Settled() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

const (
	progressUploading  = "Uploading images..."
	progressSubmitting = "Submitting job..."
	progressStarting   = "Starting generation..."
	progressQueued     = "Waiting in queue..."
	progressGenerating = "Generating try-on result..."

	msgGenerationFailed = "generation failed"
	msgNoOutput         = "generation completed without output"
)

// JobClient starts remote jobs and reports their status.
type JobClient interface {
	Start(ctx context.Context, req domain.JobRequest) (domain.JobHandle, error)
	StatusFetcher
}

// Stager turns inline image references into hosted URLs before submission.
// Inline reports which references Stage would upload.
type Stager interface {
	Inline(ref string) bool
	Stage(ctx context.Context, ref string) (string, error)
}

// Recorder receives attempt updates. Implementations persist or archive them.
type Recorder interface {
	Record(ctx context.Context, attempt domain.Attempt) error
}

// Options wires optional collaborators into a Tracker.
type Options struct {
	PanelID  string
	Poller   *Poller
	Stager   Stager
	Recorder Recorder
	Events   *EventBus
	Logger   *infra.Logger
	// Context bounds the lifetime of poll sessions. Defaults to Background.
	Context       context.Context
	RecordTimeout time.Duration
}

// Snapshot is a consistent read of tracker state.
type Snapshot struct {
	PanelID   string             `json:"id"`
	Phase     Phase              `json:"phase"`
	JobID     string             `json:"job_id,omitempty"`
	Result    string             `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	Progress  string             `json:"progress,omitempty"`
	Request   *domain.JobRequest `json:"request,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Tracker drives one try-on panel through idle, submitting, processing and
// a settled phase. It owns at most one poll session at a time.
type Tracker struct {
	client        JobClient
	poller        *Poller
	stager        Stager
	recorder      Recorder
	events        *EventBus
	logger        infra.Logger
	base          context.Context
	panelID       string
	recordTimeout time.Duration
	records       chan domain.Attempt
	recordsDone   chan struct{}

	mu          sync.Mutex
	phase       Phase
	jobID       string
	result      string
	errMsg      string
	progress    string
	lastRequest *domain.JobRequest
	attempt     domain.Attempt
	gen         uint64
	session     *Session
	settled     chan struct{}
	closed      bool
	updatedAt   time.Time
}

// NewTracker creates an idle tracker. The client is shared and may serve
// other trackers concurrently.
func NewTracker(client JobClient, opts Options) *Tracker {
	logger := infra.DiscardLogger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	poller := opts.Poller
	if poller == nil {
		poller = NewPoller(client, PollerOptions{Logger: opts.Logger})
	}
	events := opts.Events
	if events == nil {
		events = NewEventBus(0)
	}
	base := opts.Context
	if base == nil {
		base = context.Background()
	}
	recordTimeout := opts.RecordTimeout
	if recordTimeout <= 0 {
		recordTimeout = 5 * time.Second
	}
	t := &Tracker{
		client:        client,
		poller:        poller,
		stager:        opts.Stager,
		recorder:      opts.Recorder,
		events:        events,
		logger:        logger.With().Str("panel_id", opts.PanelID).Logger(),
		base:          base,
		panelID:       opts.PanelID,
		recordTimeout: recordTimeout,
		phase:         PhaseIdle,
		updatedAt:     time.Now().UTC(),
	}
	if t.recorder != nil {
		t.records = make(chan domain.Attempt, 32)
		t.recordsDone = make(chan struct{})
		go t.recordLoop()
	}
	return t
}

// Events exposes the tracker's event stream.
func (t *Tracker) Events() *EventBus {
	return t.events
}

// Phase returns the current phase.
func (t *Tracker) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// Result returns the result image reference once succeeded.
func (t *Tracker) Result() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.result != ""
}

// Error returns the failure message once failed.
func (t *Tracker) Error() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errMsg, t.errMsg != ""
}

// Snapshot returns all user-visible state at once.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	snap := Snapshot{
		PanelID:   t.panelID,
		Phase:     t.phase,
		JobID:     t.jobID,
		Result:    t.result,
		Error:     t.errMsg,
		Progress:  t.progress,
		UpdatedAt: t.updatedAt,
	}
	if t.lastRequest != nil {
		snap.Request = &domain.JobRequest{
			ModelImage:   domain.DescribeImageRef(t.lastRequest.ModelImage),
			GarmentImage: domain.DescribeImageRef(t.lastRequest.GarmentImage),
			Category:     t.lastRequest.Category,
		}
	}
	return snap
}

// Start submits req as a new job. Any session for a previous job is cancelled
// first and its late results are dropped. Start blocks until the remote job
// has been created or rejected; polling then continues in the background.
// A start failure moves the tracker to PhaseFailed and is also returned.
func (t *Tracker) Start(ctx context.Context, req domain.JobRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return domain.ErrClosed
	}
	t.abandonLocked()
	t.gen++
	gen := t.gen
	submitted := req
	t.lastRequest = &submitted
	t.jobID, t.result, t.errMsg = "", "", ""
	t.progress = progressSubmitting
	if t.stager != nil && (t.stager.Inline(req.ModelImage) || t.stager.Inline(req.GarmentImage)) {
		t.progress = progressUploading
	}
	t.settled = make(chan struct{})
	t.attempt = domain.Attempt{
		ID:        uuid.NewString(),
		PanelID:   t.panelID,
		Request:   req,
		Phase:     string(PhaseSubmitting),
		StartedAt: time.Now().UTC(),
	}
	t.setPhaseLocked(PhaseSubmitting)
	t.mu.Unlock()

	handle, err := t.submit(ctx, req)

	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		// Cancelled or superseded while the start call was in flight.
		t.logger.Debug().Str("job_id", handle.ID).Msg("tracker: discarding superseded start")
		return nil
	}
	if err != nil {
		t.failLocked(errorMessage(err))
		t.logger.Warn().Err(err).Msg("tracker: start failed")
		return err
	}

	t.jobID = handle.ID
	t.progress = progressGenerating
	t.attempt.JobID = handle.ID
	t.attempt.Phase = string(PhaseProcessing)
	t.setPhaseLocked(PhaseProcessing)
	t.enqueueRecordLocked()
	t.session = openSession(t.base, t.poller, handle, func(result PollResult) bool {
		return t.apply(gen, result)
	})
	t.logger.Info().Str("job_id", handle.ID).Msg("tracker: job started")
	return nil
}

func (t *Tracker) submit(ctx context.Context, req domain.JobRequest) (domain.JobHandle, error) {
	if t.stager != nil {
		var err error
		if req.ModelImage, err = t.stage(ctx, req.ModelImage); err != nil {
			return domain.JobHandle{}, err
		}
		if req.GarmentImage, err = t.stage(ctx, req.GarmentImage); err != nil {
			return domain.JobHandle{}, err
		}
	}
	return t.client.Start(ctx, req)
}

func (t *Tracker) stage(ctx context.Context, ref string) (string, error) {
	if !t.stager.Inline(ref) {
		return ref, nil
	}
	hosted, err := t.stager.Stage(ctx, ref)
	if err != nil {
		return "", domain.NewJobError(domain.ErrorKindUploadFailed, "", "", err)
	}
	return hosted, nil
}

// apply handles one poll result for attempt gen and reports whether the
// session should keep going.
func (t *Tracker) apply(gen uint64, result PollResult) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen || t.session == nil || t.phase != PhaseProcessing {
		return false
	}

	status := result.Status
	switch {
	case result.Err != nil:
		t.failLocked(errorMessage(result.Err))
	case status.ErrorMessage != "":
		t.failLocked(status.ErrorMessage)
	case status.Phase == domain.JobPhaseCompleted:
		if len(status.Outputs) == 0 {
			t.failLocked(msgNoOutput)
			break
		}
		t.succeedLocked(status.Outputs[0])
	case status.Phase == domain.JobPhaseFailed:
		t.failLocked(msgGenerationFailed)
	default:
		if progress := progressFor(status.Phase); progress != t.progress {
			t.progress = progress
			t.updatedAt = time.Now().UTC()
			t.events.Publish(Event{Type: EventProgress, Phase: t.phase, JobID: t.jobID, Message: progress})
		}
		return true
	}
	return false
}

// Cancel stops any active session and returns to idle without a result or
// error. Calling it again has no effect.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
}

func (t *Tracker) cancelLocked() {
	if t.phase == PhaseIdle {
		return
	}
	wasActive := !t.phase.Settled()
	t.abandonLocked()
	t.gen++
	t.jobID, t.result, t.errMsg, t.progress = "", "", "", ""
	t.setPhaseLocked(PhaseIdle)
	if wasActive {
		now := time.Now().UTC()
		t.attempt.Phase = "cancelled"
		t.attempt.FinishedAt = &now
		t.enqueueRecordLocked()
	}
	t.logger.Info().Msg("tracker: cancelled")
}

// Retry starts the last submitted request again.
func (t *Tracker) Retry(ctx context.Context) error {
	t.mu.Lock()
	last := t.lastRequest
	t.mu.Unlock()
	if last == nil {
		return domain.ErrNothingToRetry
	}
	return t.Start(ctx, *last)
}

// Close tears the tracker down: the active session is cancelled and further
// starts fail with domain.ErrClosed. It returns once every queued attempt
// update has been handed to the recorder.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.waitRecords()
		return
	}
	t.cancelLocked()
	t.closed = true
	if t.records != nil {
		close(t.records)
	}
	t.mu.Unlock()
	t.waitRecords()
}

func (t *Tracker) waitRecords() {
	if t.recordsDone != nil {
		<-t.recordsDone
	}
}

// Wait blocks until the current attempt settles, is cancelled or is
// superseded, then returns the snapshot at that moment.
func (t *Tracker) Wait(ctx context.Context) (Snapshot, error) {
	t.mu.Lock()
	settled := t.settled
	t.mu.Unlock()
	if settled != nil {
		select {
		case <-settled:
		case <-ctx.Done():
			return t.Snapshot(), ctx.Err()
		}
	}
	return t.Snapshot(), nil
}

// abandonLocked cancels the session and releases waiters of the current attempt.
func (t *Tracker) abandonLocked() {
	if t.session != nil {
		t.session.Cancel()
		t.session = nil
	}
	t.releaseWaitersLocked()
}

func (t *Tracker) releaseWaitersLocked() {
	if t.settled != nil {
		close(t.settled)
		t.settled = nil
	}
}

func (t *Tracker) succeedLocked(result string) {
	t.session = nil
	t.result = result
	t.errMsg = ""
	t.progress = ""
	t.finishAttemptLocked(PhaseSucceeded)
	t.setPhaseLocked(PhaseSucceeded)
	t.events.Publish(Event{Type: EventResult, Phase: t.phase, JobID: t.jobID, Result: result})
	t.releaseWaitersLocked()
	t.logger.Info().Str("job_id", t.jobID).Str("result", result).Msg("tracker: succeeded")
}

func (t *Tracker) failLocked(message string) {
	if strings.TrimSpace(message) == "" {
		message = msgGenerationFailed
	}
	t.session = nil
	t.result = ""
	t.errMsg = message
	t.progress = ""
	t.finishAttemptLocked(PhaseFailed)
	t.setPhaseLocked(PhaseFailed)
	t.events.Publish(Event{Type: EventError, Phase: t.phase, JobID: t.jobID, Message: message})
	t.releaseWaitersLocked()
	t.logger.Warn().Str("job_id", t.jobID).Str("error", message).Msg("tracker: failed")
}

func (t *Tracker) finishAttemptLocked(phase Phase) {
	now := time.Now().UTC()
	t.attempt.Phase = string(phase)
	t.attempt.Result = t.result
	t.attempt.Error = t.errMsg
	t.attempt.FinishedAt = &now
	t.enqueueRecordLocked()
}

func (t *Tracker) setPhaseLocked(phase Phase) {
	t.phase = phase
	t.updatedAt = time.Now().UTC()
	t.events.Publish(Event{Type: EventPhase, Phase: phase, JobID: t.jobID, Message: t.progress})
}

// enqueueRecordLocked hands the attempt to the record loop, preserving order.
func (t *Tracker) enqueueRecordLocked() {
	if t.records == nil || t.closed {
		return
	}
	select {
	case t.records <- t.attempt:
	default:
		t.logger.Warn().Str("attempt_id", t.attempt.ID).Msg("tracker: record queue full, dropping attempt update")
	}
}

func (t *Tracker) recordLoop() {
	defer close(t.recordsDone)
	for attempt := range t.records {
		ctx, cancel := context.WithTimeout(context.Background(), t.recordTimeout)
		if err := t.recorder.Record(ctx, attempt); err != nil {
			t.logger.Warn().Err(err).Str("attempt_id", attempt.ID).Msg("tracker: record attempt failed")
		}
		cancel()
	}
}

func progressFor(phase domain.JobPhase) string {
	switch phase {
	case domain.JobPhaseStarting:
		return progressStarting
	case domain.JobPhaseQueued:
		return progressQueued
	default:
		return progressGenerating
	}
}

func errorMessage(err error) string {
	var jobErr *domain.JobError
	if errors.As(err, &jobErr) {
		return jobErr.Message()
	}
	return err.Error()
}
