package client

import (
	"context"
	"sync"
)

// inFlightCall tracks one forecasting service request that several callers may wait for.
type inFlightCall struct {
	done chan struct{} // closed once body and err are set
	body []byte
	err  error
}

// requestCoalescer shares one in-flight request among concurrent callers that
// missed the cache on the same key. The first caller runs the request; later
// callers wait for its result or their own context, whichever comes first.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightCall
}

func newRequestCoalescer() *requestCoalescer {
	return &requestCoalescer{inFlight: make(map[string]*inFlightCall)}
}

// Do runs fn for key unless a call for key is already in flight, in which case
// it waits for that call. shared is true when the result came from another caller.
func (rc *requestCoalescer) Do(ctx context.Context, key string, fn func() ([]byte, error)) (body []byte, shared bool, err error) {
	rc.mu.Lock()
	if call, ok := rc.inFlight[key]; ok {
		rc.mu.Unlock()
		select {
		case <-call.done:
			return call.body, true, call.err
		case <-ctx.Done():
			return nil, true, ctx.Err()
		}
	}
	call := &inFlightCall{done: make(chan struct{})}
	rc.inFlight[key] = call
	rc.mu.Unlock()

	defer func() {
		rc.mu.Lock()
		delete(rc.inFlight, key)
		rc.mu.Unlock()
		close(call.done)
	}()

	call.body, call.err = fn()
	return call.body, false, call.err
}

// pending returns the number of keys with a request in flight.
func (rc *requestCoalescer) pending() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.inFlight)
}
