package importer

import (
	"context"
	"fmt"
)

// UnexpectedFailure is the only error reported for a run that crashed.
const UnexpectedFailure = "import failed unexpectedly"

// Run is an import executing in its own goroutine.
type Run struct {
	progress chan Progress
	done     chan struct{}
	result   *Result
	err      error
}

// Start runs Import in a new goroutine. Progress snapshots are delivered on a
// channel holding only the latest value.
func (p *Pipeline) Start(ctx context.Context, vendor Vendor, raw, ownerID string) *Run {
	r := &Run{
		progress: make(chan Progress, 1),
		done:     make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		defer close(r.progress)
		defer func() {
			if v := recover(); v != nil {
				p.log.Error().Interface("panic", v).Msg("import panicked")
				r.result = FailedResult(UnexpectedFailure)
				r.err = fmt.Errorf("import panicked: %v", v)
			}
		}()
		r.result, r.err = p.Import(ctx, vendor, raw, ownerID, r.publish)
	}()
	return r
}

// publish replaces any unread snapshot with p.
func (r *Run) publish(p Progress) {
	for {
		select {
		case r.progress <- p:
			return
		default:
		}
		select {
		case <-r.progress:
		default:
		}
	}
}

// Progress returns the snapshot channel. It is closed when the run ends.
func (r *Run) Progress() <-chan Progress { return r.progress }

// Done is closed once the result is available.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run ends or ctx is done.
func (r *Run) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-r.done:
		return r.result.Clone(), r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
