package client

import (
	"context"
	"sync"

	"github.com/silvermint/idserver/internal/errors"
	"github.com/silvermint/idserver/internal/protocol/cb1"
)

// Async serializes concurrent callers onto one synchronous Client through a
// single worker goroutine, so the underlying state machine never sees two
// calls at once.
type Async struct {
	client *Client
	calls  chan func()

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewAsync wraps a synchronous client. The wrapper owns the client; callers
// must not use it directly afterwards.
func NewAsync(client *Client) *Async {
	a := &Async{
		client: client,
		calls:  make(chan func()),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for call := range a.calls {
		call()
	}
}

// submit runs fn on the worker goroutine and waits for it, honoring ctx
// while queued. A call that has started always runs to completion.
func (a *Async) submit(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		fn()
		close(finished)
	}

	// The mutex orders submissions against Close so no call is ever sent
	// on a closed channel.
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return errors.New(errors.CodeNotLoggedIn, "client is closed")
	}
	select {
	case a.calls <- wrapped:
		a.mu.Unlock()
	case <-ctx.Done():
		a.mu.Unlock()
		return errors.Wrap(errors.CodeIOError, "call abandoned in queue", ctx.Err())
	}
	<-finished
	return nil
}

// Login authenticates through the worker goroutine.
func (a *Async) Login(ctx context.Context, user, password string) (cb1.ResponseLogin, error) {
	var (
		resp cb1.ResponseLogin
		err  error
	)
	if serr := a.submit(ctx, func() {
		resp, err = a.client.Login(ctx, user, password)
	}); serr != nil {
		return cb1.ResponseLogin{}, serr
	}
	return resp, err
}

// Execute runs one command through the worker goroutine.
func (a *Async) Execute(ctx context.Context, cmd cb1.Message) (cb1.Message, error) {
	var (
		resp cb1.Message
		err  error
	)
	if serr := a.submit(ctx, func() {
		resp, err = a.client.Execute(ctx, cmd)
	}); serr != nil {
		return nil, serr
	}
	return resp, err
}

// Close stops the worker and closes the underlying client. Closing more than
// once is a no-op.
func (a *Async) Close() error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.calls)
		a.mu.Unlock()
		<-a.done
		_ = a.client.Close()
	})
	return nil
}
