package persistence

import (
	"context"
	"errors"

	"github.com/wfunc/callout/models"
)

// ChallengeRecorder is anything that accepts resolved challenges.
type ChallengeRecorder interface {
	RecordChallenge(ctx context.Context, rec models.ChallengeRecord) error
}

// MultiRecorder fans a record out to every sink. A failing sink does not stop
// the others; their errors are joined.
type MultiRecorder []ChallengeRecorder

func (m MultiRecorder) RecordChallenge(ctx context.Context, rec models.ChallengeRecord) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.RecordChallenge(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
