// Package repo provides the Postgres repository for requirements
package repo

import (
	"context"
	stderrs "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"onehub/internal/modkit/repokit"
	perr "onehub/internal/platform/errors"
	"onehub/internal/platform/store"
	"onehub/internal/platform/timeutil"
	"onehub/internal/services/requirements/domain"
)

type binder struct{}

// NewPG constructs a new repo binder for Postgres
func NewPG() repokit.Binder[Storage] { return binder{} }

// Bind implements repokit.Binder
func (binder) Bind(q repokit.Queryer) Storage { return &pg{q: q} }

// Storage defines the requirements repository
type Storage interface {
	List(ctx context.Context, d domain.QueryDescriptor) ([]domain.Requirement, *domain.Cursor, bool, error)
	Count(ctx context.Context, d domain.QueryDescriptor) (int64, error)
	GetByID(ctx context.Context, tenantID, id string) (domain.Requirement, error)
	Insert(ctx context.Context, in domain.CreateInput) (domain.Requirement, error)
	Update(ctx context.Context, tenantID, id, actorID string, p domain.Patch) (domain.Requirement, error)
	Delete(ctx context.Context, tenantID, id string) error
}

type pg struct{ q repokit.Queryer }

// List returns one page plus a continuation cursor when more rows exist.
// Fetches limit+1 so HasMore never needs a second query.
func (s *pg) List(ctx context.Context, d domain.QueryDescriptor) ([]domain.Requirement, *domain.Cursor, bool, error) {
	d = d.Normalize()

	sql, args := listQuery(d, d.PageSize+1)
	out, err := store.Many(ctx, s.q, scanRequirement, sql, args...)
	if err != nil {
		return nil, nil, false, perr.FromPostgres(err, "list requirements")
	}

	hasMore := len(out) > d.PageSize
	if hasMore {
		out = out[:d.PageSize]
	}

	var next *domain.Cursor
	if hasMore && len(out) > 0 {
		last := out[len(out)-1]
		next = &domain.Cursor{Key: cursorKeyOf(last, d.Sort), ID: last.ID}
	}
	return out, next, hasMore, nil
}

// Count returns the total row count for the descriptor's filters
func (s *pg) Count(ctx context.Context, d domain.QueryDescriptor) (int64, error) {
	d = d.Normalize()

	sql, args := countQuery(d)
	n, err := store.Scalar[int64](ctx, s.q, sql, args...)
	if err != nil {
		return 0, perr.FromPostgres(err, "count requirements")
	}
	return n, nil
}

// GetByID returns a single tenant-scoped row
func (s *pg) GetByID(ctx context.Context, tenantID, id string) (domain.Requirement, error) {
	rec, err := store.One(ctx, s.q, scanRequirement, selectOne+`
		WHERE r.tenant_id = $1::uuid AND r.id = $2::uuid
	`, tenantID, id)
	if err != nil {
		if stderrs.Is(err, perr.ErrNotFound) || stderrs.Is(err, pgx.ErrNoRows) {
			return domain.Requirement{}, perr.NotFoundf("requirement %s not found", id)
		}
		return domain.Requirement{}, perr.FromPostgres(err, "get requirement")
	}
	return rec, nil
}

// Insert creates one row, allocating the tenant's next display number
// atomically through an upsert counter
func (s *pg) Insert(ctx context.Context, in domain.CreateInput) (domain.Requirement, error) {
	var num int64
	err := s.q.QueryRow(ctx, `
		INSERT INTO requirement_counters (tenant_id, last)
		VALUES ($1::uuid, 1)
		ON CONFLICT (tenant_id) DO UPDATE SET last = requirement_counters.last + 1
		RETURNING last
	`, in.TenantID).Scan(&num)
	if err != nil {
		return domain.Requirement{}, perr.FromPostgres(err, "allocate display number")
	}

	rm, ok := domain.ParseRemote(in.Remote)
	if !ok {
		rm = domain.RemoteOnsite
	}

	now := timeutil.UTC(timeutil.Now())
	row := s.q.QueryRow(ctx, `
		INSERT INTO requirements (
			id, display_number, tenant_id, status,
			title, company, description, tech_stack, location,
			vendor_name, vendor_email, vendor_phone, rate, remote,
			created_at, updated_at, created_by, updated_by
		) VALUES (
			gen_random_uuid(), $1, $2::uuid, $3,
			$4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $14, $15::uuid, $15::uuid
		)
		RETURNING `+selectCols,
		num, in.TenantID, string(domain.StatusNew),
		in.Title, in.Company, in.Description, in.TechStack, in.Location,
		in.VendorName, in.VendorEmail, in.VendorPhone, in.Rate, string(rm),
		now, in.ActorID,
	)

	rec, err := scanRequirement(row)
	if err != nil {
		return domain.Requirement{}, perr.FromPostgres(err, "insert requirement")
	}
	return rec, nil
}

// Update applies a sparse patch and returns the fresh row
func (s *pg) Update(ctx context.Context, tenantID, id, actorID string, p domain.Patch) (domain.Requirement, error) {
	if p.Empty() {
		return s.GetByID(ctx, tenantID, id)
	}

	var sets []string
	var args []any
	arg := func(v any) string { args = append(args, v); return "$" + strconv.Itoa(len(args)) }

	if p.Status != nil {
		st, ok := domain.ParseStatus(*p.Status)
		if !ok {
			return domain.Requirement{}, perr.InvalidArgf("unknown status %q", *p.Status)
		}
		sets = append(sets, "status = "+arg(string(st)))
	}
	if p.Title != nil {
		sets = append(sets, "title = "+arg(*p.Title))
	}
	if p.Company != nil {
		sets = append(sets, "company = "+arg(*p.Company))
	}
	if p.Description != nil {
		sets = append(sets, "description = "+arg(*p.Description))
	}
	if p.TechStack != nil {
		sets = append(sets, "tech_stack = "+arg(*p.TechStack))
	}
	if p.Location != nil {
		sets = append(sets, "location = "+arg(*p.Location))
	}
	if p.VendorName != nil {
		sets = append(sets, "vendor_name = "+arg(*p.VendorName))
	}
	if p.VendorEmail != nil {
		sets = append(sets, "vendor_email = "+arg(*p.VendorEmail))
	}
	if p.VendorPhone != nil {
		sets = append(sets, "vendor_phone = "+arg(*p.VendorPhone))
	}
	if p.Rate != nil {
		sets = append(sets, "rate = "+arg(*p.Rate))
	}
	if p.Remote != nil {
		rm, ok := domain.ParseRemote(*p.Remote)
		if !ok {
			return domain.Requirement{}, perr.InvalidArgf("unknown remote mode %q", *p.Remote)
		}
		sets = append(sets, "remote = "+arg(string(rm)))
	}

	sets = append(sets, "updated_at = "+arg(timeutil.UTC(timeutil.Now())))
	sets = append(sets, "updated_by = "+arg(actorID)+"::uuid")

	sql := fmt.Sprintf(`
		UPDATE requirements r
		SET %s
		WHERE r.tenant_id = %s::uuid AND r.id = %s::uuid
		RETURNING %s`,
		strings.Join(sets, ", "), arg(tenantID), arg(id), selectCols,
	)

	rec, err := scanRequirement(s.q.QueryRow(ctx, sql, args...))
	if err != nil {
		if stderrs.Is(err, pgx.ErrNoRows) {
			return domain.Requirement{}, perr.NotFoundf("requirement %s not found", id)
		}
		return domain.Requirement{}, perr.FromPostgres(err, "update requirement")
	}
	return rec, nil
}

// Delete removes one row; missing rows surface as NotFound
func (s *pg) Delete(ctx context.Context, tenantID, id string) error {
	tag, err := s.q.Exec(ctx, `
		DELETE FROM requirements
		WHERE tenant_id = $1::uuid AND id = $2::uuid
	`, tenantID, id)
	if err != nil {
		return perr.FromPostgres(err, "delete requirement")
	}
	if tag.RowsAffected() == 0 {
		return perr.NotFoundf("requirement %s not found", id)
	}
	return nil
}

const selectCols = `
			r.id::text,
			r.display_number,
			r.tenant_id::text,
			r.status::text,
			r.title,
			r.company,
			r.description,
			r.tech_stack,
			r.location,
			r.vendor_name,
			r.vendor_email,
			r.vendor_phone,
			r.rate,
			r.remote::text,
			r.created_at,
			r.updated_at,
			r.created_by::text,
			r.updated_by::text`

const selectOne = "SELECT " + selectCols + `
		FROM requirements r`

func scanRequirement(s store.Row) (domain.Requirement, error) {
	var rec domain.Requirement
	err := s.Scan(
		&rec.ID,
		&rec.DisplayNumber,
		&rec.TenantID,
		&rec.Status,
		&rec.Title,
		&rec.Company,
		&rec.Description,
		&rec.TechStack,
		&rec.Location,
		&rec.VendorName,
		&rec.VendorEmail,
		&rec.VendorPhone,
		&rec.Rate,
		&rec.Remote,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.CreatedBy,
		&rec.UpdatedBy,
	)
	return rec, err
}

// cursorKeyOf serializes the sort column value of the page's last row
func cursorKeyOf(rec domain.Requirement, f domain.SortField) string {
	switch f {
	case domain.SortByCreatedAt:
		return rec.CreatedAt.UTC().Format(time.RFC3339Nano)
	case domain.SortByUpdatedAt:
		return rec.UpdatedAt.UTC().Format(time.RFC3339Nano)
	case domain.SortByRate:
		return strconv.FormatFloat(rec.Rate, 'f', -1, 64)
	case domain.SortByDisplayNumber:
		return strconv.FormatInt(rec.DisplayNumber, 10)
	case domain.SortByCompany:
		return rec.Company
	case domain.SortByStatus:
		return string(rec.Status)
	default:
		return rec.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
}
