package lib

import (
	"context"
	"sync"
	"sync/atomic"
)

// CancelState is the progression of a cancellation token.
type CancelState int32

const (
	CancelNone CancelState = iota
	CancelRequested
	CancelEscalated
)

// CancelToken is polled by long-running operations between units of work.
// The first call to Cancel asks for a graceful stop, the second one escalates.
// A nil token is never cancelled.
type CancelToken struct {
	state  atomic.Int32
	once   sync.Once
	ctx    context.Context
	cancel context.CancelFunc
}

func NewCancelToken() *CancelToken {
	ctx, cancel := context.WithCancel(context.Background())
	return &CancelToken{
		ctx:    ctx,
		cancel: cancel,
	}
}

// Cancel advances the token to its next state and returns it.
func (t *CancelToken) Cancel() CancelState {
	for {
		current := t.state.Load()
		if current == int32(CancelEscalated) {
			return CancelEscalated
		}
		if t.state.CompareAndSwap(current, current+1) {
			t.once.Do(t.cancel)
			return CancelState(current + 1)
		}
	}
}

func (t *CancelToken) State() CancelState {
	if t == nil {
		return CancelNone
	}
	return CancelState(t.state.Load())
}

func (t *CancelToken) Requested() bool {
	return t.State() >= CancelRequested
}

func (t *CancelToken) Escalated() bool {
	return t.State() >= CancelEscalated
}

// Context is done as soon as a stop has been requested.
func (t *CancelToken) Context() context.Context {
	if t == nil {
		return context.Background()
	}
	return t.ctx
}
