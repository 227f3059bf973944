package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"onehub/internal/platform/logger"
	"onehub/internal/platform/store"
	"onehub/internal/services/requirements/domain"
)

// pubsubKV is an in-memory store.KV good enough for pub/sub tests
type pubsubKV struct {
	mu        sync.Mutex
	published map[string][][]byte
	subs      map[string][]chan []byte
}

func newPubsubKV() *pubsubKV {
	return &pubsubKV{published: map[string][][]byte{}, subs: map[string][]chan []byte{}}
}

func (k *pubsubKV) Get(context.Context, string) ([]byte, error) { return nil, store.ErrKVMiss }
func (k *pubsubKV) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (k *pubsubKV) Publish(_ context.Context, channel string, payload []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.published[channel] = append(k.published[channel], payload)
	for _, ch := range k.subs[channel] {
		ch <- payload
	}
	return nil
}

func (k *pubsubKV) Subscribe(_ context.Context, channel string) (store.Subscription, error) {
	ch := make(chan []byte, 32)
	k.mu.Lock()
	k.subs[channel] = append(k.subs[channel], ch)
	k.mu.Unlock()
	return memSub{ch: ch}, nil
}

func (k *pubsubKV) Ping(context.Context) error { return nil }
func (k *pubsubKV) Close() error               { return nil }

type memSub struct{ ch chan []byte }

func (s memSub) Messages() <-chan []byte { return s.ch }
func (s memSub) Close() error            { return nil }

// recorder is a Target spy
type recorder struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
}

func (r *recorder) Apply(ev domain.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []domain.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ChangeEvent, len(r.events))
	copy(out, r.events)
	return out
}

func update(id string) domain.ChangeEvent {
	return domain.ChangeEvent{
		Type:   domain.ChangeUpdate,
		Record: domain.Requirement{ID: id, TenantID: "tenant-1", Title: "remote edit"},
		At:     time.Now().UTC(),
	}
}

func TestNotifierPublishesOnTenantChannel(t *testing.T) {
	kv := newPubsubKV()
	n := NewNotifier(kv)

	if err := n.Publish(context.Background(), update("id-1")); err != nil {
		t.Fatal(err)
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()
	msgs := kv.published[Channel("tenant-1")]
	if len(msgs) != 1 {
		t.Fatalf("published = %d", len(msgs))
	}
	var ev domain.ChangeEvent
	if err := json.Unmarshal(msgs[0], &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != domain.ChangeUpdate || ev.Record.ID != "id-1" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestSubscriberDeliversToAttachedViews(t *testing.T) {
	kv := newPubsubKV()
	sub := NewSubscriber(kv, "tenant-1", *logger.Get())
	rec := &recorder{}
	view := NewView(rec, nil)
	sub.Attach(view)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sub.Run(ctx) }()

	// wait for the subscription to land before publishing
	waitFor(t, func() bool {
		kv.mu.Lock()
		defer kv.mu.Unlock()
		return len(kv.subs[Channel("tenant-1")]) == 1
	})

	n := NewNotifier(kv)
	if err := n.Publish(ctx, update("id-1")); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })
	if got := rec.snapshot()[0]; got.Record.ID != "id-1" {
		t.Fatalf("event = %+v", got)
	}
}

func TestSubscriberDropsMalformedPayloads(t *testing.T) {
	kv := newPubsubKV()
	sub := NewSubscriber(kv, "tenant-1", *logger.Get())
	rec := &recorder{}
	sub.Attach(NewView(rec, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sub.Run(ctx) }()

	waitFor(t, func() bool {
		kv.mu.Lock()
		defer kv.mu.Unlock()
		return len(kv.subs[Channel("tenant-1")]) == 1
	})

	if err := kv.Publish(ctx, Channel("tenant-1"), []byte("{nope")); err != nil {
		t.Fatal(err)
	}
	n := NewNotifier(kv)
	if err := n.Publish(ctx, update("id-2")); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })
	if rec.snapshot()[0].Record.ID != "id-2" {
		t.Fatalf("events = %+v", rec.snapshot())
	}
}

func TestDetachedViewStopsReceiving(t *testing.T) {
	kv := newPubsubKV()
	sub := NewSubscriber(kv, "tenant-1", *logger.Get())
	rec := &recorder{}
	view := NewView(rec, nil)

	if view.State() != StateUnsubscribed {
		t.Fatalf("state = %v", view.State())
	}
	sub.Attach(view)
	if view.State() != StateSubscribed {
		t.Fatalf("state = %v", view.State())
	}
	sub.Detach(view)
	if view.State() != StateUnsubscribed {
		t.Fatalf("state = %v", view.State())
	}

	sub.dispatch(update("id-1"))
	if len(rec.snapshot()) != 0 {
		t.Fatal("detached view still received events")
	}
}

func TestEditGuardParksUpdatesAndNotifiesOnce(t *testing.T) {
	rec := &recorder{}
	notices := 0
	view := NewView(rec, func(domain.ChangeEvent) { notices++ })

	view.BeginEdit("id-1")
	view.handle(update("id-1"))
	view.handle(update("id-1"))
	view.handle(update("id-1"))

	if len(rec.snapshot()) != 0 {
		t.Fatalf("edited record merged mid-edit: %+v", rec.snapshot())
	}
	if notices != 1 {
		t.Fatalf("notices = %d, want exactly one per episode", notices)
	}

	// other records are unaffected by the guard
	view.handle(update("id-2"))
	if len(rec.snapshot()) != 1 || rec.snapshot()[0].Record.ID != "id-2" {
		t.Fatalf("events = %+v", rec.snapshot())
	}
}

func TestEndEditLandsParkedChangesAndRearmsLatch(t *testing.T) {
	rec := &recorder{}
	notices := 0
	view := NewView(rec, func(domain.ChangeEvent) { notices++ })

	view.BeginEdit("id-1")
	view.handle(update("id-1"))
	view.handle(update("id-1"))
	view.EndEdit()

	got := rec.snapshot()
	if len(got) != 2 {
		t.Fatalf("parked changes did not land: %+v", got)
	}
	if view.Editing() {
		t.Fatal("edit session should be closed")
	}

	// a fresh episode notifies again
	view.BeginEdit("id-1")
	view.handle(update("id-1"))
	if notices != 2 {
		t.Fatalf("notices = %d, latch did not rearm", notices)
	}
}

func TestDeleteAppliesEvenDuringEdit(t *testing.T) {
	rec := &recorder{}
	view := NewView(rec, nil)

	view.BeginEdit("id-1")
	view.handle(domain.ChangeEvent{
		Type:   domain.ChangeDelete,
		Record: domain.Requirement{ID: "id-1", TenantID: "tenant-1"},
	})

	got := rec.snapshot()
	if len(got) != 1 || got[0].Type != domain.ChangeDelete {
		t.Fatalf("events = %+v", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}
