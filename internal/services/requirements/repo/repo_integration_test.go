//go:build integration_pg
// +build integration_pg

package repo

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"onehub/internal/platform/store"
	"onehub/internal/services/requirements/domain"
)

// startPostgres launches a disposable Postgres and returns DSN + stop func
func startPostgres(t *testing.T) (dsn string, stop func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "postgres",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections"),
		).WithDeadline(2 * time.Minute),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		cancel()
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get container host: %v", err)
	}
	mp, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get mapped port: %v", err)
	}

	dsn = fmt.Sprintf("postgres://postgres:postgres@%s:%s/postgres?sslmode=disable", host, mp.Port())
	stop = func() {
		_ = c.Terminate(context.Background())
		cancel()
	}
	return dsn, stop
}

var integrationSchema = []string{`
	CREATE TABLE requirements (
		id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		display_number BIGINT NOT NULL,
		tenant_id      UUID NOT NULL,
		status         TEXT NOT NULL,
		title          TEXT NOT NULL,
		company        TEXT NOT NULL DEFAULT '',
		description    TEXT NOT NULL DEFAULT '',
		tech_stack     TEXT NOT NULL DEFAULT '',
		location       TEXT NOT NULL DEFAULT '',
		vendor_name    TEXT NOT NULL DEFAULT '',
		vendor_email   TEXT NOT NULL DEFAULT '',
		vendor_phone   TEXT NOT NULL DEFAULT '',
		rate           DOUBLE PRECISION NOT NULL DEFAULT 0,
		remote         TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL,
		created_by     UUID NOT NULL,
		updated_by     UUID NOT NULL
	)`, `
	CREATE TABLE requirement_counters (
		tenant_id UUID PRIMARY KEY,
		last      BIGINT NOT NULL
	)`,
}

const integrationTenant = "5f2a49d6-7be5-4c3a-9a43-2f42f3a1c001"
const integrationActor = "5f2a49d6-7be5-4c3a-9a43-2f42f3a1c002"

func openIntegrationRepo(t *testing.T, dsn string) (Storage, store.RowQuerier) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	t.Cleanup(cancel)

	st, err := store.Open(ctx, store.Config{
		AppName: "repo-it",
		PG:      store.PGConfig{Enabled: true, URL: dsn, MaxConns: 2},
	}, store.WithLogger(zerolog.New(io.Discard)))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	for _, ddl := range integrationSchema {
		if _, err := st.PG.Exec(ctx, ddl); err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return NewPG().Bind(st.PG), st.PG
}

func seedRow(t *testing.T, q store.RowQuerier, num int, created time.Time) {
	t.Helper()
	_, err := q.Exec(context.Background(), `
		INSERT INTO requirements (
			display_number, tenant_id, status, title, remote,
			created_at, updated_at, created_by, updated_by
		) VALUES ($1, $2::uuid, 'NEW', $3, 'REMOTE', $4, $4, $5::uuid, $5::uuid)
	`, num, integrationTenant, fmt.Sprintf("role %d", num), created, integrationActor)
	if err != nil {
		t.Fatalf("seed row %d: %v", num, err)
	}
}

func collectIDs(pages ...[]domain.Requirement) map[string]int {
	seen := map[string]int{}
	for _, rows := range pages {
		for _, r := range rows {
			seen[r.ID]++
		}
	}
	return seen
}

// Paging through distinct timestamps must walk strictly backwards in time
// with no row repeated across pages.
func TestListIntegration_CursorWalksStrictlyOlder(t *testing.T) {
	dsn, stop := startPostgres(t)
	defer stop()
	s, q := openIntegrationRepo(t, dsn)
	ctx := context.Background()

	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		seedRow(t, q, i, t0.Add(-time.Duration(i)*time.Minute))
	}

	d := domain.QueryDescriptor{TenantID: integrationTenant, PageSize: 10}.Normalize()

	p0, cur, hasMore, err := s.List(ctx, d)
	if err != nil {
		t.Fatal(err)
	}
	if len(p0) != 10 || !hasMore || cur == nil {
		t.Fatalf("page 0: rows=%d hasMore=%v cur=%+v", len(p0), hasMore, cur)
	}

	d2 := d
	d2.Cursor = cur
	p1, _, _, err := s.List(ctx, d2)
	if err != nil {
		t.Fatal(err)
	}
	if len(p1) != 10 {
		t.Fatalf("page 1: rows=%d", len(p1))
	}

	last := p0[len(p0)-1]
	for _, r := range p1 {
		if !r.CreatedAt.Before(last.CreatedAt) {
			t.Fatalf("row %s at %v is not older than page boundary %v", r.ID, r.CreatedAt, last.CreatedAt)
		}
	}
	for id, n := range collectIDs(p0, p1) {
		if n != 1 {
			t.Fatalf("row %s appeared %d times across pages", id, n)
		}
	}
}

// Identical timestamps force the id tiebreaker; the two pages must still
// partition the rows without overlap or loss.
func TestListIntegration_EqualKeysPartitionById(t *testing.T) {
	dsn, stop := startPostgres(t)
	defer stop()
	s, q := openIntegrationRepo(t, dsn)
	ctx := context.Background()

	same := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		seedRow(t, q, i, same)
	}

	d := domain.QueryDescriptor{TenantID: integrationTenant, PageSize: 4}.Normalize()

	p0, cur, hasMore, err := s.List(ctx, d)
	if err != nil {
		t.Fatal(err)
	}
	if len(p0) != 4 || !hasMore || cur == nil {
		t.Fatalf("page 0: rows=%d hasMore=%v cur=%+v", len(p0), hasMore, cur)
	}

	d2 := d
	d2.Cursor = cur
	p1, cur2, hasMore2, err := s.List(ctx, d2)
	if err != nil {
		t.Fatal(err)
	}
	if len(p1) != 4 || hasMore2 || cur2 != nil {
		t.Fatalf("page 1: rows=%d hasMore=%v cur=%+v", len(p1), hasMore2, cur2)
	}

	seen := collectIDs(p0, p1)
	if len(seen) != 8 {
		t.Fatalf("pages cover %d distinct rows, want 8", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("row %s appeared %d times across pages", id, n)
		}
	}
}
