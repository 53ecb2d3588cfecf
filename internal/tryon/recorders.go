package tryon

import (
	"context"
	"errors"

	"tryon/internal/domain"
)

// MultiRecorder fans an attempt out to several recorders. Every recorder is
// called; their errors are joined.
type MultiRecorder []Recorder

func (m MultiRecorder) Record(ctx context.Context, attempt domain.Attempt) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, attempt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorders drops nil entries and returns nil when none remain.
func Recorders(rs ...Recorder) Recorder {
	var out MultiRecorder
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}
