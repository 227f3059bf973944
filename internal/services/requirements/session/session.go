// Package session keeps a per-user, short-lived cache of requirement pages
// with stale-while-revalidate semantics.
//
// A Manager owns one list view. Use returns instantly when it has anything
// to show (fresh page, stale page, or the previous descriptor's page) and
// refreshes in the background; only a cold start blocks. In-flight fetches
// for the same descriptor collapse through singleflight, and a generation
// counter discards responses that arrive after the descriptor moved on.
package session

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	perr "onehub/internal/platform/errors"
	"onehub/internal/platform/logger"
	"onehub/internal/platform/timeutil"
	"onehub/internal/services/requirements/domain"
)

// View is what the caller renders
type View struct {
	Data      domain.PageResult
	IsLoading bool
	Err       error
	// Offline marks data served from the local snapshot
	Offline bool
}

// Config tunes a Manager
type Config struct {
	// TTL is the freshness window; defaults to 30s
	TTL time.Duration
	// Retries is how many times a transient fetch error is retried; defaults to 2
	Retries int
	// Backoff is the fixed pause between retries; defaults to 500ms
	Backoff time.Duration
}

type entry struct {
	page      domain.PageResult
	fetchedAt time.Time
}

// Manager is one user's session cache over a list view
type Manager struct {
	query  domain.QueryPort
	snaps  domain.SnapshotPort
	userID string
	cfg    Config
	log    logger.Logger

	sf singleflight.Group

	// seams for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	gen     uint64
	closed  bool
	online  bool
	entries map[string]entry
	curFP   string
	curDesc domain.QueryDescriptor
	last    domain.PageResult
	hasLast bool
	lastErr error
}

// New builds a Manager for one user. snaps may be nil; the offline
// fallback then degrades to an empty page.
func New(query domain.QueryPort, snaps domain.SnapshotPort, userID string, cfg Config, log logger.Logger) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	switch {
	case cfg.Retries == 0:
		cfg.Retries = 2
	case cfg.Retries < 0:
		cfg.Retries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	return &Manager{
		query:   query,
		snaps:   snaps,
		userID:  userID,
		cfg:     cfg,
		log:     log.With().Str("component", "session").Str("user", userID).Logger(),
		now:     func() time.Time { return timeutil.Now() },
		sleep:   sleepCtx,
		online:  true,
		entries: map[string]entry{},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Use resolves a descriptor to a renderable view.
//
// Fresh entry: returned as-is. Stale entry or a previous page: returned
// immediately with IsLoading set while a background refresh runs. Nothing
// at all: blocks on the fetch, falling back to the offline snapshot when
// the network is away.
func (m *Manager) Use(ctx context.Context, d domain.QueryDescriptor) View {
	d = d.Normalize()
	fp := d.Fingerprint()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return View{Err: perr.Unavailablef("session closed")}
	}
	if fp != m.curFP {
		m.gen++
		m.curFP = fp
		m.curDesc = d
	}
	gen := m.gen

	if e, ok := m.entries[fp]; ok && m.now().Sub(e.fetchedAt) < m.cfg.TTL {
		m.last = e.page
		m.hasLast = true
		m.mu.Unlock()
		return View{Data: e.page}
	}

	if !m.online {
		m.mu.Unlock()
		return m.offlineView(ctx, d)
	}

	if e, ok := m.entries[fp]; ok {
		m.mu.Unlock()
		go m.refresh(context.WithoutCancel(ctx), d, fp, gen)
		return View{Data: e.page, IsLoading: true}
	}
	if m.hasLast {
		prev := m.last
		m.mu.Unlock()
		go m.refresh(context.WithoutCancel(ctx), d, fp, gen)
		return View{Data: prev, IsLoading: true}
	}
	m.mu.Unlock()

	page, err := m.refresh(ctx, d, fp, gen)
	if err != nil {
		if perr.IsCode(err, perr.ErrorCodeUnavailable) {
			return m.offlineView(ctx, d)
		}
		return View{Err: err}
	}
	return View{Data: page}
}

// Revalidate refetches the current descriptor regardless of freshness.
// Success replaces the shown page silently; failure lands in LastErr and
// the shown page stays.
func (m *Manager) Revalidate(ctx context.Context) {
	m.mu.Lock()
	if m.closed || m.curFP == "" {
		m.mu.Unlock()
		return
	}
	d, fp, gen := m.curDesc, m.curFP, m.gen
	m.mu.Unlock()

	if _, err := m.refresh(ctx, d, fp, gen); err != nil {
		m.log.Debug().Err(err).Msg("revalidate failed")
	}
}

// OnFocus revalidates when the view regains focus
func (m *Manager) OnFocus(ctx context.Context) { m.Revalidate(ctx) }

// SetOnline flips the connectivity flag; a reconnect edge revalidates
func (m *Manager) SetOnline(on bool) {
	m.mu.Lock()
	was := m.online
	m.online = on
	m.mu.Unlock()

	if on && !was {
		go m.Revalidate(context.Background())
	}
}

// LastErr reports the most recent background failure, if any
func (m *Manager) LastErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Current returns the page shown right now, if there is one
func (m *Manager) Current() (domain.PageResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[m.curFP]; ok {
		return e.page, true
	}
	if m.hasLast {
		return m.last, true
	}
	return domain.PageResult{}, false
}

// Descriptor returns the descriptor the view is currently on
func (m *Manager) Descriptor() (domain.QueryDescriptor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.curDesc, m.curFP != ""
}

// Patch rewrites the row with the given id on the current page through fn.
// Missing rows are a no-op.
func (m *Manager) Patch(id string, fn func(domain.Requirement) domain.Requirement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[m.curFP]
	if !ok {
		return
	}
	for i := range e.page.Rows {
		if e.page.Rows[i].ID == id {
			e.page = e.page.ApplyUpdate(fn(e.page.Rows[i]))
			m.entries[m.curFP] = e
			m.last = e.page
			m.hasLast = true
			return
		}
	}
}

// Apply merges a change event into the current page via the page reducers.
// Inserts land only on the unfiltered first page.
func (m *Manager) Apply(ev domain.ChangeEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[m.curFP]
	if !ok {
		return
	}

	switch ev.Type {
	case domain.ChangeInsert:
		if !firstUnfiltered(m.curDesc) {
			return
		}
		e.page = e.page.ApplyInsert(ev.Record, m.curDesc.PageSize)
	case domain.ChangeUpdate:
		e.page = e.page.ApplyUpdate(ev.Record)
	case domain.ChangeDelete:
		e.page = e.page.ApplyDelete(ev.Record.ID)
	default:
		return
	}
	m.entries[m.curFP] = e
	m.last = e.page
	m.hasLast = true
}

// Close invalidates the session; in-flight responses are discarded
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.gen++
}

// refresh fetches one page through singleflight and stores it if the
// session is still on the same generation
func (m *Manager) refresh(ctx context.Context, d domain.QueryDescriptor, fp string, gen uint64) (domain.PageResult, error) {
	v, err, _ := m.sf.Do(fp, func() (any, error) {
		return m.fetchWithRetry(ctx, d)
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.lastErr = err
		return domain.PageResult{}, err
	}
	page := v.(domain.PageResult)

	if m.closed || gen != m.gen {
		// the view moved on; hand the page back but never commit it
		return page, nil
	}

	m.entries[fp] = entry{page: page, fetchedAt: m.now()}
	m.last = page
	m.hasLast = true
	m.lastErr = nil

	if m.snaps != nil && firstUnfiltered(d) {
		rows := page.Rows
		go func() {
			cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := m.snaps.SaveSnapshot(cctx, m.userID, rows); err != nil {
				m.log.Debug().Err(err).Msg("snapshot save failed")
			}
		}()
	}
	return page, nil
}

// fetchWithRetry retries transient failures a fixed number of times with a
// fixed pause, and honors the caller's context between attempts
func (m *Manager) fetchWithRetry(ctx context.Context, d domain.QueryDescriptor) (domain.PageResult, error) {
	var lastErr error
	for attempt := 0; attempt <= m.cfg.Retries; attempt++ {
		if attempt > 0 {
			if err := m.sleep(ctx, m.cfg.Backoff); err != nil {
				return domain.PageResult{}, err
			}
		}
		page, err := m.query.FetchPage(ctx, d, domain.FetchOptions{})
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return domain.PageResult{}, lastErr
}

func retryable(err error) bool {
	return perr.IsRetryable(err) || perr.IsCode(err, perr.ErrorCodeUnavailable)
}

// firstUnfiltered reports whether d is the canonical first page with no
// filters, the only window the snapshot mirrors
func firstUnfiltered(d domain.QueryDescriptor) bool {
	return d.Unfiltered() && d.Page == 0 && d.Cursor == nil
}

// offlineView serves the snapshot for the unfiltered first page, or an
// empty page when there is nothing local. Being away from the network is
// not an error.
func (m *Manager) offlineView(ctx context.Context, d domain.QueryDescriptor) View {
	if m.snaps == nil || !firstUnfiltered(d) {
		return View{Data: domain.PageResult{Rows: []domain.Requirement{}}, Offline: true}
	}
	rows, err := m.snaps.LoadSnapshot(ctx, m.userID, true)
	if err != nil || rows == nil {
		if err != nil {
			m.log.Debug().Err(err).Msg("snapshot load failed")
		}
		return View{Data: domain.PageResult{Rows: []domain.Requirement{}}, Offline: true}
	}
	return View{Data: domain.PageResult{Rows: rows}, Offline: true}
}
