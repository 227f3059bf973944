package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"onehub/internal/modkit/repokit"
	"onehub/internal/platform/logger"
	"onehub/internal/services/requirements/domain"
	"onehub/internal/services/requirements/repo"
)

// fakeStorage is a repo.Storage spy with canned results
type fakeStorage struct {
	mu      sync.Mutex
	listN   int
	countN  int
	rows    []domain.Requirement
	next    *domain.Cursor
	hasMore bool
	total   int64
	listErr error

	inserted domain.Requirement
	deleted  []string
}

func (f *fakeStorage) List(_ context.Context, _ domain.QueryDescriptor) ([]domain.Requirement, *domain.Cursor, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listN++
	if f.listErr != nil {
		return nil, nil, false, f.listErr
	}
	return f.rows, f.next, f.hasMore, nil
}

func (f *fakeStorage) Count(_ context.Context, _ domain.QueryDescriptor) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countN++
	return f.total, nil
}

func (f *fakeStorage) GetByID(_ context.Context, _, id string) (domain.Requirement, error) {
	return domain.Requirement{ID: id, TenantID: "tenant-1", UpdatedBy: "actor-1"}, nil
}

func (f *fakeStorage) Insert(_ context.Context, in domain.CreateInput) (domain.Requirement, error) {
	f.inserted = domain.Requirement{ID: "id-new", TenantID: in.TenantID, Title: in.Title, Status: domain.StatusNew}
	return f.inserted, nil
}

func (f *fakeStorage) Update(_ context.Context, _, id, _ string, _ domain.Patch) (domain.Requirement, error) {
	return domain.Requirement{ID: id, TenantID: "tenant-1"}, nil
}

func (f *fakeStorage) Delete(_ context.Context, _, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

// fakeTx hands the same nil queryer to every unit of work
type fakeTx struct{}

func (fakeTx) Exec(context.Context, string, ...any) (repokit.CommandTag, error) { return nil, nil }
func (fakeTx) Query(context.Context, string, ...any) (repokit.Rows, error)      { return nil, nil }
func (fakeTx) QueryRow(context.Context, string, ...any) repokit.Row             { return nil }
func (fakeTx) Tx(_ context.Context, fn func(q repokit.Queryer) error) error     { return fn(fakeTx{}) }

// spyCache counts hits and records writes; set signals setDone per write
type spyCache struct {
	mu      sync.Mutex
	pages   map[string]domain.PageResult
	getN    int
	setN    int
	setDone chan struct{}
}

func newSpyCache() *spyCache {
	return &spyCache{pages: map[string]domain.PageResult{}, setDone: make(chan struct{}, 16)}
}

func (c *spyCache) Get(_ context.Context, fp string) (domain.PageResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getN++
	p, ok := c.pages[fp]
	return p, ok
}

func (c *spyCache) Set(_ context.Context, fp string, page domain.PageResult) {
	c.mu.Lock()
	c.pages[fp] = page
	c.setN++
	c.mu.Unlock()
	c.setDone <- struct{}{}
}

func (c *spyCache) waitSet(t *testing.T) {
	t.Helper()
	select {
	case <-c.setDone:
	case <-time.After(2 * time.Second):
		t.Fatal("cache write never happened")
	}
}

type spyNotifier struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
}

func (n *spyNotifier) Publish(_ context.Context, ev domain.ChangeEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

type spyAudit struct {
	mu   sync.Mutex
	done chan struct{}
	rows []string
}

func newSpyAudit() *spyAudit { return &spyAudit{done: make(chan struct{}, 16)} }

func (a *spyAudit) Record(_ context.Context, _, _, action, recordID string) {
	a.mu.Lock()
	a.rows = append(a.rows, action+":"+recordID)
	a.mu.Unlock()
	a.done <- struct{}{}
}

func binderFor(f *fakeStorage) repokit.Binder[repo.Storage] {
	return repokit.BindFunc[repo.Storage](func(repokit.Queryer) repo.Storage { return f })
}

func newTestService(f *fakeStorage, cache domain.PageCachePort, n domain.NotifierPort, a domain.AuditPort) *Service {
	return New(fakeTx{}, binderFor(f), cache, n, a, Config{}, *logger.Get())
}

func descriptor() domain.QueryDescriptor {
	d := domain.QueryDescriptor{TenantID: "tenant-1"}
	d = d.Normalize()
	return d
}

func TestFetchPageSecondCallHitsCache(t *testing.T) {
	st := &fakeStorage{rows: []domain.Requirement{{ID: "id-1"}}, hasMore: false}
	cache := newSpyCache()
	svc := newTestService(st, cache, nil, nil)
	ctx := context.Background()

	if _, err := svc.FetchPage(ctx, descriptor(), domain.FetchOptions{}); err != nil {
		t.Fatal(err)
	}
	cache.waitSet(t)

	page, err := svc.FetchPage(ctx, descriptor(), domain.FetchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Rows) != 1 || page.Rows[0].ID != "id-1" {
		t.Fatalf("page = %+v", page)
	}
	if st.listN != 1 {
		t.Fatalf("listN = %d, want exactly one database read", st.listN)
	}
}

func TestFetchPageDistinctDescriptorsMissSeparately(t *testing.T) {
	st := &fakeStorage{rows: []domain.Requirement{{ID: "id-1"}}}
	cache := newSpyCache()
	svc := newTestService(st, cache, nil, nil)
	ctx := context.Background()

	d1 := descriptor()
	d2 := descriptor()
	d2.Status = "OFFER"

	if _, err := svc.FetchPage(ctx, d1, domain.FetchOptions{}); err != nil {
		t.Fatal(err)
	}
	cache.waitSet(t)
	if _, err := svc.FetchPage(ctx, d2, domain.FetchOptions{}); err != nil {
		t.Fatal(err)
	}
	cache.waitSet(t)

	if st.listN != 2 {
		t.Fatalf("listN = %d, want one read per distinct descriptor", st.listN)
	}
}

func TestFetchPageCountOnlyWithTotal(t *testing.T) {
	st := &fakeStorage{rows: []domain.Requirement{{ID: "id-1"}}, total: 99}
	svc := newTestService(st, nil, nil, nil)
	ctx := context.Background()

	page, err := svc.FetchPage(ctx, descriptor(), domain.FetchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != nil {
		t.Fatal("total computed without being asked")
	}
	if st.countN != 0 {
		t.Fatalf("countN = %d", st.countN)
	}

	page, err = svc.FetchPage(ctx, descriptor(), domain.FetchOptions{WithTotal: true})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total == nil || *page.Total != 99 {
		t.Fatalf("total = %v", page.Total)
	}
	if st.countN != 1 {
		t.Fatalf("countN = %d", st.countN)
	}
}

func TestFetchPageTotallessHitUpgradesWhenTotalAsked(t *testing.T) {
	st := &fakeStorage{rows: []domain.Requirement{{ID: "id-1"}}, total: 7}
	cache := newSpyCache()
	svc := newTestService(st, cache, nil, nil)
	ctx := context.Background()

	if _, err := svc.FetchPage(ctx, descriptor(), domain.FetchOptions{}); err != nil {
		t.Fatal(err)
	}
	cache.waitSet(t)

	// cached page has no total, so asking for one goes back to the database
	page, err := svc.FetchPage(ctx, descriptor(), domain.FetchOptions{WithTotal: true})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total == nil || *page.Total != 7 {
		t.Fatalf("total = %v", page.Total)
	}
	if st.listN != 2 {
		t.Fatalf("listN = %d", st.listN)
	}
}

func TestFetchPageFailureIsNeverCached(t *testing.T) {
	st := &fakeStorage{listErr: errors.New("relation is on fire")}
	cache := newSpyCache()
	svc := newTestService(st, cache, nil, nil)

	if _, err := svc.FetchPage(context.Background(), descriptor(), domain.FetchOptions{}); err == nil {
		t.Fatal("expected the database error to surface")
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()
	if cache.setN != 0 {
		t.Fatal("a failed fetch must not be cached")
	}
}

func TestFetchPageWorksWithoutCache(t *testing.T) {
	st := &fakeStorage{rows: []domain.Requirement{{ID: "id-1"}}}
	svc := newTestService(st, nil, nil, nil)

	page, err := svc.FetchPage(context.Background(), descriptor(), domain.FetchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Rows) != 1 {
		t.Fatalf("page = %+v", page)
	}
}

func TestCreatePublishesInsertAndAudits(t *testing.T) {
	st := &fakeStorage{}
	notes := &spyNotifier{}
	audit := newSpyAudit()
	svc := newTestService(st, nil, notes, audit)

	rec, err := svc.Create(context.Background(), domain.CreateInput{
		TenantID: "tenant-1", Title: "Go engineer", ActorID: "actor-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != domain.StatusNew {
		t.Fatalf("status = %s", rec.Status)
	}

	notes.mu.Lock()
	if len(notes.events) != 1 || notes.events[0].Type != domain.ChangeInsert {
		t.Fatalf("events = %+v", notes.events)
	}
	notes.mu.Unlock()

	select {
	case <-audit.done:
	case <-time.After(2 * time.Second):
		t.Fatal("audit record never happened")
	}
}

func TestDeletePublishesWithTheRemovedRecord(t *testing.T) {
	st := &fakeStorage{}
	notes := &spyNotifier{}
	svc := newTestService(st, nil, notes, nil)

	if err := svc.Delete(context.Background(), "tenant-1", "id-9"); err != nil {
		t.Fatal(err)
	}
	if len(st.deleted) != 1 || st.deleted[0] != "id-9" {
		t.Fatalf("deleted = %v", st.deleted)
	}

	notes.mu.Lock()
	defer notes.mu.Unlock()
	if len(notes.events) != 1 || notes.events[0].Type != domain.ChangeDelete || notes.events[0].Record.ID != "id-9" {
		t.Fatalf("events = %+v", notes.events)
	}
}

func TestUpdatePublishesUpdate(t *testing.T) {
	st := &fakeStorage{}
	notes := &spyNotifier{}
	svc := newTestService(st, nil, notes, nil)

	title := "Staff Go engineer"
	_, err := svc.Update(context.Background(), "tenant-1", "id-2", domain.Patch{Title: &title, ActorID: "actor-1"})
	if err != nil {
		t.Fatal(err)
	}

	notes.mu.Lock()
	defer notes.mu.Unlock()
	if len(notes.events) != 1 || notes.events[0].Type != domain.ChangeUpdate {
		t.Fatalf("events = %+v", notes.events)
	}
}
