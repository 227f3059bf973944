// Package realtime pushes record-level change events between clients over
// the shared KV's pub/sub and reconciles them into open views.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	perr "onehub/internal/platform/errors"
	"onehub/internal/platform/logger"
	"onehub/internal/platform/store"
	"onehub/internal/services/requirements/domain"
)

const channelPrefix = "req:changes:"

// Channel names the pub/sub channel for one tenant
func Channel(tenantID string) string { return channelPrefix + tenantID }

// Notifier implements domain.NotifierPort over the shared KV
type Notifier struct {
	kv store.KV
}

// NewNotifier builds a change publisher
func NewNotifier(kv store.KV) *Notifier { return &Notifier{kv: kv} }

// Publish implements domain.NotifierPort
func (n *Notifier) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeJSON, "encode change event")
	}
	if err := n.kv.Publish(ctx, Channel(ev.Record.TenantID), raw); err != nil {
		return perr.Wrap(err, perr.ErrorCodeUnavailable, "publish change event")
	}
	return nil
}

// Subscriber listens on a tenant's change channel and fans events out to
// attached views. It reconnects with a fixed pause until its context ends.
type Subscriber struct {
	kv       store.KV
	tenantID string
	log      logger.Logger
	retry    time.Duration

	mu    sync.Mutex
	views map[*View]struct{}
}

// NewSubscriber builds a subscriber for one tenant
func NewSubscriber(kv store.KV, tenantID string, log logger.Logger) *Subscriber {
	return &Subscriber{
		kv:       kv,
		tenantID: tenantID,
		log:      log.With().Str("component", "realtime").Str("tenant", tenantID).Logger(),
		retry:    time.Second,
		views:    map[*View]struct{}{},
	}
}

// Attach registers a view for event delivery and marks it subscribed
func (s *Subscriber) Attach(v *View) {
	s.mu.Lock()
	s.views[v] = struct{}{}
	s.mu.Unlock()
	v.setState(StateSubscribed)
}

// Detach unregisters a view
func (s *Subscriber) Detach(v *View) {
	s.mu.Lock()
	delete(s.views, v)
	s.mu.Unlock()
	v.setState(StateUnsubscribed)
}

// Run blocks pumping events until ctx is done
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		sub, err := s.kv.Subscribe(ctx, Channel(s.tenantID))
		if err != nil {
			s.log.Warn().Err(err).Msg("subscribe failed")
			if serr := sleepCtx(ctx, s.retry); serr != nil {
				return serr
			}
			continue
		}

		if err := s.pump(ctx, sub); err != nil {
			return err
		}
		// message channel closed underneath us; resubscribe
		if err := sleepCtx(ctx, s.retry); err != nil {
			return err
		}
	}
}

func (s *Subscriber) pump(ctx context.Context, sub store.Subscription) error {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			var ev domain.ChangeEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				s.log.Warn().Err(err).Msg("dropping malformed change event")
				continue
			}
			s.dispatch(ev)
		}
	}
}

func (s *Subscriber) dispatch(ev domain.ChangeEvent) {
	s.mu.Lock()
	targets := make([]*View, 0, len(s.views))
	for v := range s.views {
		targets = append(targets, v)
	}
	s.mu.Unlock()

	for _, v := range targets {
		v.handle(ev)
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

// State is where a view sits in its reconciliation lifecycle
type State int

// View lifecycle states
const (
	StateUnsubscribed State = iota
	StateSubscribed
	StateApplying
)

// Target absorbs reconciled change events; session.Manager satisfies it
type Target interface {
	Apply(ev domain.ChangeEvent)
}

// View reconciles incoming events into one open view.
//
// While an edit session is active, remote updates to the edited record are
// parked instead of merged, and onNotice fires exactly once per episode;
// the latch rearms when the edit session ends and the parked changes land.
type View struct {
	mu        sync.Mutex
	target    Target
	state     State
	editingID string
	parked    []domain.ChangeEvent
	notified  bool
	onNotice  func(ev domain.ChangeEvent)
}

// NewView wraps a target; onNotice may be nil
func NewView(target Target, onNotice func(ev domain.ChangeEvent)) *View {
	return &View{target: target, onNotice: onNotice}
}

// State reports the view's lifecycle state
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *View) setState(s State) {
	v.mu.Lock()
	v.state = s
	v.mu.Unlock()
}

// BeginEdit opens an edit session over one record
func (v *View) BeginEdit(recordID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.editingID = recordID
	v.notified = false
	v.parked = nil
}

// EndEdit closes the edit session, lands the parked changes, and rearms
// the notice latch
func (v *View) EndEdit() {
	v.mu.Lock()
	parked := v.parked
	v.parked = nil
	v.editingID = ""
	v.notified = false
	v.mu.Unlock()

	for _, ev := range parked {
		v.target.Apply(ev)
	}
}

// Editing reports whether an edit session is open
func (v *View) Editing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.editingID != ""
}

func (v *View) handle(ev domain.ChangeEvent) {
	v.mu.Lock()

	if v.editingID != "" && ev.Record.ID == v.editingID && ev.Type == domain.ChangeUpdate {
		v.parked = append(v.parked, ev)
		fire := !v.notified && v.onNotice != nil
		v.notified = true
		v.mu.Unlock()
		if fire {
			v.onNotice(ev)
		}
		return
	}

	prev := v.state
	v.state = StateApplying
	v.mu.Unlock()

	v.target.Apply(ev)

	v.mu.Lock()
	if v.state == StateApplying {
		v.state = prev
	}
	v.mu.Unlock()
}
