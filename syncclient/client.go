package syncclient

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"mediationflow/identity"
	"mediationflow/message"
	"mediationflow/presence"
	"mediationflow/session"
)

// API is the remote surface the sync client pulls from. The default
// implementation polls full snapshots; a delta-fetching or push-based
// transport can substitute without touching the session or message contracts.
type API interface {
	Session(ctx context.Context, sessionID string) (session.Session, error)
	Presence(ctx context.Context, sessionID string) ([]presence.Record, error)
	Messages(ctx context.Context, sessionID string) ([]message.Message, error)
	Heartbeat(ctx context.Context, sessionID, userID string, role identity.Role) error
}

// View is one participant's eventually consistent picture of the session,
// rebuilt on every poll. Gate is recomputed from the fetched snapshot and is
// never carried over from a previous poll.
type View struct {
	Session  session.Session
	Presence []presence.Record
	Messages []message.Message
	Gate     session.Gate
}

// Options configures one participant's sync loop. Zero intervals select the
// reference defaults (3s poll, 30s heartbeat).
type Options struct {
	SessionID         string
	UserID            string
	Role              identity.Role
	PollInterval      time.Duration
	HeartbeatInterval time.Duration

	// OnUpdate receives each freshly assembled view.
	OnUpdate func(View)
	// OnError receives transient poll failures; the loop keeps running.
	OnError func(error)

	Logger *log.Logger
}

// Client keeps one participant's local view eventually consistent with the
// shared session state: a fixed-interval poll plus an independent heartbeat.
type Client struct {
	api  API
	opts Options
}

// New builds a sync client for one connected participant.
func New(api API, opts Options) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Client{api: api, opts: opts}
}

// Run drives the poll and heartbeat loops until ctx is cancelled. The two
// loops are independent: a slow poll never delays a heartbeat and vice versa.
// Run always returns ctx.Err(); transient failures never stop the loops.
func (c *Client) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.pollLoop(ctx) })
	g.Go(func() error { return c.heartbeatLoop(ctx) })
	return g.Wait()
}

func (c *Client) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	c.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.pollOnce(ctx)
		}
	}
}

// pollOnce fetches session, presence and messages concurrently, then derives
// the gate from what it fetched.
func (c *Client) pollOnce(ctx context.Context) {
	var view View
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sess, err := c.api.Session(gctx, c.opts.SessionID)
		if err != nil {
			return err
		}
		view.Session = sess
		return nil
	})
	g.Go(func() error {
		records, err := c.api.Presence(gctx, c.opts.SessionID)
		if err != nil {
			return err
		}
		view.Presence = records
		return nil
	})
	g.Go(func() error {
		msgs, err := c.api.Messages(gctx, c.opts.SessionID)
		if err != nil {
			return err
		}
		view.Messages = msgs
		return nil
	})

	if err := g.Wait(); err != nil {
		if ctx.Err() == nil && c.opts.OnError != nil {
			c.opts.OnError(err)
		}
		return
	}

	view.Gate = session.ComputeGate(view.Session, presence.Evaluate(view.Presence))
	if c.opts.OnUpdate != nil {
		c.opts.OnUpdate(view)
	}
}

func (c *Client) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	c.beat(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.beat(ctx)
		}
	}
}

// beat announces liveness once. Failures are logged and dropped: a later
// heartbeat self-corrects presence, so the participant is never bothered.
func (c *Client) beat(ctx context.Context) {
	if err := c.api.Heartbeat(ctx, c.opts.SessionID, c.opts.UserID, c.opts.Role); err != nil {
		if ctx.Err() == nil {
			c.opts.Logger.Printf("syncclient: heartbeat dropped: %v", err)
		}
	}
}
