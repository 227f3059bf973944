package pagecache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"onehub/internal/platform/logger"
	"onehub/internal/platform/store"
	"onehub/internal/services/requirements/domain"
)

// memKV is an in-memory store.KV with an injectable clock for expiry checks
type memKV struct {
	mu     sync.Mutex
	data   map[string]entry
	now    func() time.Time
	getErr error
	setErr error
	getN   int
	setN   int
}

type entry struct {
	val []byte
	exp time.Time
}

func newMemKV() *memKV {
	return &memKV{data: map[string]entry{}, now: time.Now}
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getN++
	if m.getErr != nil {
		return nil, m.getErr
	}
	e, ok := m.data[key]
	if !ok || (!e.exp.IsZero() && m.now().After(e.exp)) {
		return nil, store.ErrKVMiss
	}
	return e.val, nil
}

func (m *memKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setN++
	if m.setErr != nil {
		return m.setErr
	}
	var exp time.Time
	if ttl > 0 {
		exp = m.now().Add(ttl)
	}
	m.data[key] = entry{val: value, exp: exp}
	return nil
}

func (m *memKV) Publish(context.Context, string, []byte) error { return nil }
func (m *memKV) Subscribe(context.Context, string) (store.Subscription, error) {
	return nil, errors.New("not implemented")
}
func (m *memKV) Ping(context.Context) error { return nil }
func (m *memKV) Close() error               { return nil }

func testPage() domain.PageResult {
	total := int64(41)
	return domain.PageResult{
		Rows:    []domain.Requirement{{ID: "id-1", Title: "Go engineer", Status: domain.StatusNew}},
		HasMore: true,
		Total:   &total,
		Next:    &domain.Cursor{Key: "2026-03-01T00:00:00Z", ID: "id-1"},
	}
}

func TestRoundTrip(t *testing.T) {
	kv := newMemKV()
	c := New(kv, time.Minute, *logger.Get())

	ctx := context.Background()
	c.Set(ctx, "fp-1", testPage())

	got, ok := c.Get(ctx, "fp-1")
	if !ok {
		t.Fatal("expected hit")
	}
	if len(got.Rows) != 1 || got.Rows[0].ID != "id-1" || !got.HasMore {
		t.Fatalf("page = %+v", got)
	}
	if got.Total == nil || *got.Total != 41 {
		t.Fatalf("total = %v", got.Total)
	}
	if got.Next == nil || got.Next.ID != "id-1" {
		t.Fatalf("next = %+v", got.Next)
	}
}

func TestMissAfterTTL(t *testing.T) {
	kv := newMemKV()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	kv.now = func() time.Time { return base }

	c := New(kv, time.Minute, *logger.Get())
	ctx := context.Background()
	c.Set(ctx, "fp-1", testPage())

	if _, ok := c.Get(ctx, "fp-1"); !ok {
		t.Fatal("fresh entry should hit")
	}

	kv.now = func() time.Time { return base.Add(61 * time.Second) }
	if _, ok := c.Get(ctx, "fp-1"); ok {
		t.Fatal("expired entry should miss")
	}
}

func TestDistinctFingerprintsDoNotCollide(t *testing.T) {
	kv := newMemKV()
	c := New(kv, time.Minute, *logger.Get())
	ctx := context.Background()

	c.Set(ctx, "fp-a", testPage())

	if _, ok := c.Get(ctx, "fp-b"); ok {
		t.Fatal("different fingerprint must miss")
	}
}

func TestReadFailureIsAMiss(t *testing.T) {
	kv := newMemKV()
	kv.getErr = errors.New("redis gone")
	c := New(kv, time.Minute, *logger.Get())

	if _, ok := c.Get(context.Background(), "fp-1"); ok {
		t.Fatal("backend failure must read as a miss")
	}
}

func TestWriteFailureIsSwallowed(t *testing.T) {
	kv := newMemKV()
	kv.setErr = errors.New("redis gone")
	c := New(kv, time.Minute, *logger.Get())

	// must not panic or surface anything
	c.Set(context.Background(), "fp-1", testPage())
}

func TestCorruptEntryIsAMiss(t *testing.T) {
	kv := newMemKV()
	c := New(kv, time.Minute, *logger.Get())
	ctx := context.Background()

	if err := kv.Set(ctx, keyPrefix+"fp-1", []byte("{not json"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(ctx, "fp-1"); ok {
		t.Fatal("corrupt entry should miss")
	}
}
