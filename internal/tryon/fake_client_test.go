package tryon

import (
	"context"
	"sync"
	"time"

	"tryon/internal/domain"
)

type step struct {
	status domain.JobStatus
	err    error
}

func statusStep(id string, phase domain.JobPhase, outputs ...string) step {
	return step{status: domain.NewJobStatus(id, phase, outputs, "")}
}

// fakeClient replays scripted status sequences per job id. Once a script is
// exhausted its last step repeats.
type fakeClient struct {
	mu        sync.Mutex
	nextIDs   []string
	startErrs []error
	scripts   map[string][]step
	calls     map[string]int
	starts    []domain.JobRequest
	delay     time.Duration
	gate      chan struct{}
	entered   chan struct{}
	inFlight  int
	maxFlight int
}

func newFakeClient() *fakeClient {
	return &fakeClient{scripts: map[string][]step{}, calls: map[string]int{}}
}

func (f *fakeClient) script(id string, steps ...step) *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextIDs = append(f.nextIDs, id)
	f.startErrs = append(f.startErrs, nil)
	f.scripts[id] = steps
	return f
}

func (f *fakeClient) rejectNext(err error) *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextIDs = append(f.nextIDs, "")
	f.startErrs = append(f.startErrs, err)
	return f
}

// holdStarts makes Start block until release is called. entered receives
// once per Start that reaches the gate.
func (f *fakeClient) holdStarts() (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 8)
	gate := f.gate
	var once sync.Once
	return f.entered, func() { once.Do(func() { close(gate) }) }
}

func (f *fakeClient) Start(_ context.Context, req domain.JobRequest) (domain.JobHandle, error) {
	f.mu.Lock()
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, req)
	if len(f.nextIDs) == 0 {
		return domain.JobHandle{}, domain.NewJobError(domain.ErrorKindStartFailed, "", "no scripted job", nil)
	}
	id, err := f.nextIDs[0], f.startErrs[0]
	f.nextIDs, f.startErrs = f.nextIDs[1:], f.startErrs[1:]
	if err != nil {
		return domain.JobHandle{}, err
	}
	return domain.JobHandle{ID: id}, nil
}

func (f *fakeClient) Status(ctx context.Context, handle domain.JobHandle) (domain.JobStatus, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxFlight {
		f.maxFlight = f.inFlight
	}
	n := f.calls[handle.ID]
	f.calls[handle.ID] = n + 1
	steps := f.scripts[handle.ID]
	delay := f.delay
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}
	if len(steps) == 0 {
		return domain.NewJobStatus(handle.ID, domain.JobPhaseProcessing, nil, ""), nil
	}
	if n >= len(steps) {
		n = len(steps) - 1
	}
	return steps[n].status, steps[n].err
}

func (f *fakeClient) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeClient) startedRequests() []domain.JobRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.JobRequest(nil), f.starts...)
}

func (f *fakeClient) maxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxFlight
}
