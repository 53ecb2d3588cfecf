package tryon

import (
	"context"
	"time"

	"tryon/internal/domain"
	"tryon/internal/infra"
)

const (
	DefaultPollInterval    = 2 * time.Second
	DefaultMaxPollDuration = 5 * time.Minute
)

// StatusFetcher returns the current snapshot of a remote job.
type StatusFetcher interface {
	Status(ctx context.Context, handle domain.JobHandle) (domain.JobStatus, error)
}

// PollResult is one element of a poll sequence: a snapshot or an error.
type PollResult struct {
	Status domain.JobStatus
	Err    error
}

// Terminal reports whether the sequence ends at this element.
func (r PollResult) Terminal() bool {
	return r.Err != nil || r.Status.Terminal()
}

// PollerOptions configures cadence and budget.
type PollerOptions struct {
	Interval    time.Duration
	MaxDuration time.Duration
	Logger      *infra.Logger
}

// Poller queries job status on a fixed period until a terminal snapshot.
type Poller struct {
	fetcher     StatusFetcher
	interval    time.Duration
	maxDuration time.Duration
	logger      infra.Logger
}

func NewPoller(fetcher StatusFetcher, opts PollerOptions) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	maxDuration := opts.MaxDuration
	if maxDuration <= 0 {
		maxDuration = DefaultMaxPollDuration
	}
	logger := infra.DiscardLogger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Poller{fetcher: fetcher, interval: interval, maxDuration: maxDuration, logger: logger}
}

// Interval returns the configured polling period.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Poll starts a fresh sequence for handle. The returned channel yields every
// snapshot in order and is closed right after the first terminal element
// (completed, failed, error message set, fetch error or timeout), which is
// always delivered. Cancelling ctx stops the timer and closes the channel
// without delivering anything further.
func (p *Poller) Poll(ctx context.Context, handle domain.JobHandle) <-chan PollResult {
	out := make(chan PollResult)
	go p.run(ctx, handle, out)
	return out
}

func (p *Poller) run(ctx context.Context, handle domain.JobHandle, out chan<- PollResult) {
	defer close(out)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(p.maxDuration)
	defer deadline.Stop()

	log := p.logger.With().Str("job_id", handle.ID).Logger()
	log.Debug().Dur("interval", p.interval).Msg("poller: started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("poller: cancelled")
			return
		case <-deadline.C:
			p.emit(ctx, out, PollResult{Err: domain.NewJobError(domain.ErrorKindTimeout, handle.ID,
				"generation did not finish within "+p.maxDuration.String(), nil)})
			log.Warn().Dur("max_duration", p.maxDuration).Msg("poller: timed out")
			return
		case <-ticker.C:
		}

		// The fetch runs inline, so calls for one job never overlap; ticks
		// that fire while it is in flight are dropped by the ticker.
		status, err := p.fetcher.Status(ctx, handle)
		if ctx.Err() != nil {
			return
		}
		result := PollResult{Status: status, Err: err}
		if !p.emit(ctx, out, result) {
			return
		}
		if result.Terminal() {
			log.Debug().Str("phase", string(status.Phase)).AnErr("error", err).Msg("poller: finished")
			return
		}
	}
}

func (p *Poller) emit(ctx context.Context, out chan<- PollResult, result PollResult) bool {
	select {
	case out <- result:
		return true
	case <-ctx.Done():
		return false
	}
}
