package repo

import (
	"context"
	"strings"
	"testing"
	"time"

	"onehub/internal/modkit/repokit"
	perr "onehub/internal/platform/errors"
	"onehub/internal/services/requirements/domain"
)

// fakeQueryer replays canned rows and records issued SQL
type fakeQueryer struct {
	rows     [][]any
	rowErr   error
	affected int64
	lastSQL  []string
	lastArgs [][]any
}

func (f *fakeQueryer) Exec(_ context.Context, sql string, args ...any) (repokit.CommandTag, error) {
	f.lastSQL = append(f.lastSQL, sql)
	f.lastArgs = append(f.lastArgs, args)
	return fakeTag{f.affected}, nil
}

func (f *fakeQueryer) Query(_ context.Context, sql string, args ...any) (repokit.Rows, error) {
	f.lastSQL = append(f.lastSQL, sql)
	f.lastArgs = append(f.lastArgs, args)
	return &fakeRows{rows: f.rows}, nil
}

func (f *fakeQueryer) QueryRow(_ context.Context, sql string, args ...any) repokit.Row {
	f.lastSQL = append(f.lastSQL, sql)
	f.lastArgs = append(f.lastArgs, args)
	if len(f.rows) == 0 {
		return fakeRow{err: f.rowErr}
	}
	return fakeRow{vals: f.rows[0]}
}

type fakeTag struct{ n int64 }

func (t fakeTag) String() string      { return "FAKE" }
func (t fakeTag) RowsAffected() int64 { return t.n }

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(r.vals, dest)
}

type fakeRows struct {
	rows [][]any
	i    int
}

func (r *fakeRows) Next() bool {
	if r.i >= len(r.rows) {
		return false
	}
	r.i++
	return true
}

func (r *fakeRows) Scan(dest ...any) error { return assign(r.rows[r.i-1], dest) }
func (r *fakeRows) Err() error             { return nil }
func (r *fakeRows) Close()                 {}
func (r *fakeRows) Columns() []string      { return nil }

func assign(vals, dest []any) error {
	for i, v := range vals {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int64:
			*d = v.(int64)
		case *float64:
			*d = v.(float64)
		case *time.Time:
			*d = v.(time.Time)
		case *domain.Status:
			*d = domain.Status(v.(string))
		case *domain.Remote:
			*d = domain.Remote(v.(string))
		}
	}
	return nil
}

func rowFor(id string, created time.Time) []any {
	return []any{
		id, int64(7), "tenant-1", "NEW",
		"Go engineer", "Acme", "", "go,postgres", "NYC",
		"Vendor", "v@acme.io", "", 85.0, "REMOTE",
		created, created, "actor-1", "actor-1",
	}
}

func TestListTrimsOverfetchAndBuildsCursor(t *testing.T) {
	d := domain.QueryDescriptor{TenantID: "tenant-1", PageSize: 2}
	d = d.Normalize()

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q := &fakeQueryer{rows: [][]any{
		rowFor("id-1", t0),
		rowFor("id-2", t0.Add(-time.Minute)),
		rowFor("id-3", t0.Add(-2*time.Minute)),
	}}

	s := NewPG().Bind(q)
	rows, next, hasMore, err := s.List(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want page size", len(rows))
	}
	if !hasMore {
		t.Fatal("expected more rows past the page")
	}
	if next == nil || next.ID != "id-2" {
		t.Fatalf("next = %+v", next)
	}
	if next.Key != t0.Add(-time.Minute).Format(time.RFC3339Nano) {
		t.Fatalf("cursor key = %q", next.Key)
	}

	// the overfetch is part of the query, not a second roundtrip
	if len(q.lastSQL) != 1 {
		t.Fatalf("issued %d queries, want 1", len(q.lastSQL))
	}
	if !strings.Contains(q.lastSQL[0], "LIMIT") {
		t.Fatal("list query missing LIMIT")
	}
}

func TestListLastPageHasNoCursor(t *testing.T) {
	d := domain.QueryDescriptor{TenantID: "tenant-1", PageSize: 5}
	d = d.Normalize()

	q := &fakeQueryer{rows: [][]any{rowFor("id-9", time.Now().UTC())}}
	s := NewPG().Bind(q)

	rows, next, hasMore, err := s.List(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || hasMore || next != nil {
		t.Fatalf("rows=%d hasMore=%v next=%+v", len(rows), hasMore, next)
	}
}

func TestDeleteMissingRowIsNotFound(t *testing.T) {
	q := &fakeQueryer{affected: 0}
	s := NewPG().Bind(q)

	err := s.Delete(context.Background(), "tenant-1", "id-404")
	if !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestDeleteScopesTenant(t *testing.T) {
	q := &fakeQueryer{affected: 1}
	s := NewPG().Bind(q)

	if err := s.Delete(context.Background(), "tenant-1", "id-1"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(q.lastSQL[0], "tenant_id = $1") {
		t.Fatalf("delete not tenant scoped:\n%s", q.lastSQL[0])
	}
}

func TestUpdateEmptyPatchReadsBack(t *testing.T) {
	q := &fakeQueryer{rows: [][]any{rowFor("id-1", time.Now().UTC())}}
	s := NewPG().Bind(q)

	rec, err := s.Update(context.Background(), "tenant-1", "id-1", "actor-1", domain.Patch{})
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID != "id-1" {
		t.Fatalf("rec = %+v", rec)
	}
	if strings.Contains(q.lastSQL[0], "UPDATE") {
		t.Fatal("empty patch should not issue an UPDATE")
	}
}

func TestUpdateRejectsUnknownStatus(t *testing.T) {
	q := &fakeQueryer{}
	s := NewPG().Bind(q)

	bad := "SHIPPED"
	_, err := s.Update(context.Background(), "tenant-1", "id-1", "actor-1", domain.Patch{Status: &bad})
	if !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("err = %v, want invalid argument", err)
	}
	if len(q.lastSQL) != 0 {
		t.Fatal("invalid status should fail before any SQL")
	}
}

func TestUpdateOnlyPatchedColumns(t *testing.T) {
	q := &fakeQueryer{rows: [][]any{rowFor("id-1", time.Now().UTC())}}
	s := NewPG().Bind(q)

	title := "Senior Go engineer"
	_, err := s.Update(context.Background(), "tenant-1", "id-1", "actor-1", domain.Patch{Title: &title})
	if err != nil {
		t.Fatal(err)
	}

	sql := q.lastSQL[0]
	if !strings.Contains(sql, "title = $1") {
		t.Fatalf("missing title set:\n%s", sql)
	}
	if strings.Contains(sql, "company =") || strings.Contains(sql, "rate =") {
		t.Fatalf("untouched columns in SET:\n%s", sql)
	}
	if !strings.Contains(sql, "updated_by = $") {
		t.Fatal("update must stamp updated_by")
	}
}
