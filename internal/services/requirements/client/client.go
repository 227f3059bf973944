// Package client composes the per-user tier over the requirements service:
// the session cache, the offline mirror, and the realtime reconciler. One
// Client is one signed-in user on one device; reads flow through the
// session, edits made while away queue in the mirror and replay on
// reconnect, and remote changes land through the reconciling view.
package client

import (
	"context"
	"sync"
	"time"

	"onehub/internal/platform/logger"
	"onehub/internal/platform/store"
	"onehub/internal/services/requirements/domain"
	"onehub/internal/services/requirements/offline"
	"onehub/internal/services/requirements/realtime"
	"onehub/internal/services/requirements/session"
)

// Config wires one Client
type Config struct {
	TenantID string
	UserID   string

	// OfflinePath is the bbolt file backing the offline mirror
	OfflinePath string
	// SnapshotTTL bounds mirror freshness; <= 0 uses offline.DefaultTTL
	SnapshotTTL time.Duration
	// Session tunes the in-memory page cache
	Session session.Config
	// OnNotice fires once per edit episode when a remote update touches
	// the record being edited
	OnNotice func(ev domain.ChangeEvent)
}

// Client owns one user's live view of the requirements list
type Client struct {
	writer domain.WriterPort
	sess   *session.Manager
	off    *offline.Store
	sub    *realtime.Subscriber
	view   *realtime.View

	tenantID string
	userID   string
	log      logger.Logger

	mu     sync.Mutex
	online bool
}

// New builds the client tier. kv may be nil; the client then runs without
// realtime delivery and leans on revalidation alone.
func New(query domain.QueryPort, writer domain.WriterPort, kv store.KV, cfg Config, log logger.Logger) (*Client, error) {
	off, err := offline.Open(cfg.OfflinePath, cfg.SnapshotTTL, log)
	if err != nil {
		return nil, err
	}

	c := &Client{
		writer:   writer,
		off:      off,
		tenantID: cfg.TenantID,
		userID:   cfg.UserID,
		log:      log.With().Str("component", "client").Str("user", cfg.UserID).Logger(),
		online:   true,
	}
	c.sess = session.New(query, off, cfg.UserID, cfg.Session, log)
	c.view = realtime.NewView(c.sess, cfg.OnNotice)
	if kv != nil {
		c.sub = realtime.NewSubscriber(kv, cfg.TenantID, log)
		c.sub.Attach(c.view)
	}
	return c, nil
}

// Run pumps realtime events into the view until ctx ends
func (c *Client) Run(ctx context.Context) error {
	if c.sub == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return c.sub.Run(ctx)
}

// Use resolves a descriptor through the session cache
func (c *Client) Use(ctx context.Context, d domain.QueryDescriptor) session.View {
	return c.sess.Use(ctx, d)
}

// OnFocus revalidates the shown page when the view regains focus
func (c *Client) OnFocus(ctx context.Context) { c.sess.OnFocus(ctx) }

// BeginEdit opens an edit session; remote updates to the record are parked
func (c *Client) BeginEdit(recordID string) { c.view.BeginEdit(recordID) }

// EndEdit closes the edit session and lands whatever was parked
func (c *Client) EndEdit() { c.view.EndEdit() }

// Editing reports whether an edit session is open
func (c *Client) Editing() bool { return c.view.Editing() }

// Update writes through when online; while away the patch is queued in the
// mirror and echoed onto the shown page so the edit is visible right away
func (c *Client) Update(ctx context.Context, id string, patch domain.Patch) error {
	c.mu.Lock()
	online := c.online
	c.mu.Unlock()

	if !online {
		m := offline.PendingMutation{RecordID: id, TenantID: c.tenantID, Patch: patch}
		if err := c.off.Enqueue(ctx, c.userID, m); err != nil {
			return err
		}
		c.sess.Patch(id, func(r domain.Requirement) domain.Requirement {
			offline.ApplyPatch(&r, patch)
			return r
		})
		return nil
	}

	rec, err := c.writer.Update(ctx, c.tenantID, id, patch)
	if err != nil {
		return err
	}
	c.sess.Patch(id, func(domain.Requirement) domain.Requirement { return rec })
	return nil
}

// SetOnline flips connectivity. A reconnect edge replays the queued edits
// before the session revalidates; a transient replay failure keeps the
// remainder queued and still brings the session online.
func (c *Client) SetOnline(ctx context.Context, on bool) error {
	c.mu.Lock()
	was := c.online
	c.online = on
	c.mu.Unlock()

	var err error
	if on && !was {
		err = c.off.Replay(ctx, c.userID, c.writer)
	}
	c.sess.SetOnline(on)
	return err
}

// Close detaches the view and releases the session and the mirror
func (c *Client) Close() error {
	if c.sub != nil {
		c.sub.Detach(c.view)
	}
	c.sess.Close()
	return c.off.Close()
}
