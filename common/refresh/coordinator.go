// Package refresh serializes credential refreshes.
//
// A Coordinator runs at most one refresh at a time. Callers whose requests were rejected
// because the credential expired join the in-flight refresh instead of starting their own,
// and are released in the order they joined once it settles. A failed refresh releases
// everyone with the error and forces a single sign-out. A cycle started for a credential
// the store no longer holds hands out the stored one without calling the Refresher.
package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/guarzo/gymapi/common"
)

// Settlement receives the outcome of the refresh a caller joined. Exactly one of token and
// err is non-nil. Settlements run on the refresh goroutine in join order and must not block.
type Settlement func(token *oauth2.Token, err error)

// Stats is a snapshot of the coordinator counters.
type Stats struct {
	Cycles    int64 // refresh cycles started
	Refreshes int64 // calls made to the Refresher
	Reused    int64 // cycles settled with a credential already renewed elsewhere
	Failures  int64 // cycles that ended in sign-out
	Settled   int64 // settlements delivered
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.log = common.LoggerOrNop(l) }
}

// WithListener registers fn to be called with every newly saved credential.
func WithListener(fn func(token *oauth2.Token)) Option {
	return func(c *Coordinator) { c.listeners = append(c.listeners, fn) }
}

// Coordinator owns the refresh state and the queue of callers waiting on it.
type Coordinator struct {
	store     common.CredentialStore
	refresher common.Refresher
	notifier  common.SessionNotifier
	log       *zap.Logger
	listeners []func(*oauth2.Token)

	mu         sync.Mutex
	refreshing bool
	pending    []Settlement

	cycles    atomic.Int64
	refreshes atomic.Int64
	reused    atomic.Int64
	failures  atomic.Int64
	settled   atomic.Int64
}

// New creates an idle Coordinator.
func New(store common.CredentialStore, refresher common.Refresher, notifier common.SessionNotifier, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		refresher: refresher,
		notifier:  notifier,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Join queues settle on the current refresh, starting one if none is in flight.
// rejected is the credential the server turned down, nil when none was sent. It only
// matters to the caller that starts a cycle.
// ctx only carries values to the refresh; its cancellation does not stop the refresh and
// does not remove settle from the queue.
func (c *Coordinator) Join(ctx context.Context, rejected *oauth2.Token, settle Settlement) {
	c.mu.Lock()
	c.pending = append(c.pending, settle)
	if c.refreshing {
		queued := len(c.pending)
		c.mu.Unlock()
		c.log.Debug("joined in-flight credential refresh", zap.Int("queued", queued))
		return
	}
	c.refreshing = true
	c.mu.Unlock()

	c.cycles.Add(1)
	go c.run(context.WithoutCancel(ctx), accessToken(rejected))
}

// AwaitRefreshedCredential blocks until the refresh it joined settles and returns the new
// credential. If ctx ends first it returns ctx.Err(); the queued entry is still settled
// when the refresh completes.
func (c *Coordinator) AwaitRefreshedCredential(ctx context.Context, rejected *oauth2.Token) (*oauth2.Token, error) {
	type result struct {
		token *oauth2.Token
		err   error
	}
	done := make(chan result, 1)
	c.Join(ctx, rejected, func(token *oauth2.Token, err error) {
		done <- result{token: token, err: err}
	})

	select {
	case r := <-done:
		return r.token, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Refreshing reports whether a refresh is in flight.
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

// Pending returns the number of callers waiting on the in-flight refresh.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Stats returns a snapshot of the coordinator counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Cycles:    c.cycles.Load(),
		Refreshes: c.refreshes.Load(),
		Reused:    c.reused.Load(),
		Failures:  c.failures.Load(),
		Settled:   c.settled.Load(),
	}
}

func (c *Coordinator) run(ctx context.Context, rejected string) {
	token, renewed, err := c.refresh(ctx, rejected)

	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.refreshing = false
	c.mu.Unlock()

	if err != nil {
		c.failures.Add(1)
		c.log.Warn("credential refresh failed, signing out",
			zap.Error(err), zap.Int("waiters", len(pending)))
		c.notifier.ForceSignOut(ctx)
		token = nil
	} else if renewed {
		c.log.Info("credential refreshed", zap.Int("waiters", len(pending)))
		for _, fn := range c.listeners {
			fn(token)
		}
	} else {
		c.reused.Add(1)
		c.log.Debug("rejected credential already replaced", zap.Int("waiters", len(pending)))
	}

	for _, settle := range pending {
		c.settled.Add(1)
		settle(token, err)
	}
}

// refresh renews the stored credential. renewed is false when the store already holds a
// credential other than rejected, which is then returned as is.
func (c *Coordinator) refresh(ctx context.Context, rejected string) (token *oauth2.Token, renewed bool, err error) {
	current, found, err := c.store.Get(ctx)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, common.ErrNoCredential
	}
	if rejected != "" && current.AccessToken != "" && current.AccessToken != rejected {
		return current, false, nil
	}

	c.refreshes.Add(1)
	next, err := c.refresher.Refresh(ctx, current)
	if err != nil {
		return nil, false, err
	}
	if next == nil || next.AccessToken == "" {
		return nil, false, errors.New("refresher returned an empty credential")
	}

	if err := c.store.Save(ctx, next); err != nil {
		return nil, false, err
	}
	return next, true, nil
}

func accessToken(t *oauth2.Token) string {
	if t == nil {
		return ""
	}
	return t.AccessToken
}
