package favorites

import "context"

// Persist tracks the durability phase of a toggle. The in-memory effect and
// the change event have already happened when a Persist is returned.
type Persist struct {
	added bool
	done  chan struct{}
	err   error
}

func newPersist(added bool) *Persist {
	return &Persist{added: added, done: make(chan struct{})}
}

func completedPersist(added bool, err error) *Persist {
	p := newPersist(added)
	p.complete(err)
	return p
}

func (p *Persist) complete(err error) {
	p.err = err
	close(p.done)
}

// Added reports whether the toggle inserted the record (false: removed it).
func (p *Persist) Added() bool {
	return p.added
}

func (p *Persist) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the write finished and returns its error, which wraps
// ErrRemoteUnavailable when the remote store rejected it.
func (p *Persist) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
