package testutil

import (
	"errors"
	"sync"
	"sync/atomic"

	dErrors "consent-ledger/pkg/domain-errors"
	"consent-ledger/pkg/platform/sentinel"
)

// ConcurrentResult buckets the outcomes of a RunConcurrent call.
type ConcurrentResult struct {
	Successes int32
	Conflicts int32 // invalid_state, conflict or sentinel.ErrConflict
	NotFounds int32
	Errors    int32 // anything else
}

func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Conflicts + r.NotFounds + r.Errors
}

// RunConcurrent calls fn from n goroutines at once and waits for all of them.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	var (
		wg                               sync.WaitGroup
		start                            = make(chan struct{})
		successes, conflicts, nf, others atomic.Int32
	)
	for i := range n {
		wg.Go(func() {
			<-start
			switch err := fn(i); {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrConflict),
				dErrors.HasCode(err, dErrors.CodeInvalidState),
				dErrors.HasCode(err, dErrors.CodeConflict):
				conflicts.Add(1)
			case errors.Is(err, sentinel.ErrNotFound),
				dErrors.HasCode(err, dErrors.CodeNotFound):
				nf.Add(1)
			default:
				others.Add(1)
			}
		})
	}
	close(start)
	wg.Wait()

	return &ConcurrentResult{
		Successes: successes.Load(),
		Conflicts: conflicts.Load(),
		NotFounds: nf.Load(),
		Errors:    others.Load(),
	}
}
