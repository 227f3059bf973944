// Package service implements the requirements read and write paths
package service

import (
	"context"
	"time"

	"onehub/internal/modkit/repokit"
	"onehub/internal/platform/logger"
	"onehub/internal/platform/timeutil"
	"onehub/internal/services/requirements/domain"
	"onehub/internal/services/requirements/repo"
)

// Config for the requirements service
type Config struct {
	// MaxPageSize caps the per-page row count; defaults to 100 if <= 0
	MaxPageSize int
}

// Service implements domain.QueryPort, domain.RecordPort and domain.WriterPort
type Service struct {
	DB     repokit.TxRunner
	Binder repokit.Binder[repo.Storage]
	Cache  domain.PageCachePort
	Notify domain.NotifierPort
	Audit  domain.AuditPort
	Cfg    Config
	Log    logger.Logger
}

// New constructs a requirements service. Cache, Notify and Audit may be nil;
// the read and write paths degrade to the database alone.
func New(
	db repokit.TxRunner,
	b repokit.Binder[repo.Storage],
	cache domain.PageCachePort,
	notify domain.NotifierPort,
	audit domain.AuditPort,
	cfg Config,
	log logger.Logger,
) *Service {
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	return &Service{
		DB: db, Binder: b, Cache: cache, Notify: notify, Audit: audit,
		Cfg: cfg, Log: log.With().Str("component", "requirements").Logger(),
	}
}

// FetchPage implements domain.QueryPort.
//
// It resolves the descriptor fingerprint against the page cache first and
// only queries Postgres on a miss. A count runs only when opts.WithTotal
// asks for it. Successful pages are written back to the cache without
// blocking the response; failed fetches are never cached.
func (s *Service) FetchPage(ctx context.Context, d domain.QueryDescriptor, opts domain.FetchOptions) (domain.PageResult, error) {
	d = d.Normalize()
	if d.PageSize > s.Cfg.MaxPageSize {
		d.PageSize = s.Cfg.MaxPageSize
	}

	fp := d.Fingerprint()
	if s.Cache != nil {
		if page, ok := s.Cache.Get(ctx, fp); ok {
			if !opts.WithTotal || page.Total != nil {
				return page, nil
			}
		}
	}

	var page domain.PageResult
	err := repokit.WithTx(ctx, s.DB, func(q repokit.Queryer) error {
		st := repokit.MustBind(s.Binder, q)

		rows, next, hasMore, err := st.List(ctx, d)
		if err != nil {
			return err
		}
		page = domain.PageResult{Rows: rows, Next: next, HasMore: hasMore}

		if opts.WithTotal {
			n, err := st.Count(ctx, d)
			if err != nil {
				return err
			}
			page.Total = &n
		}
		return nil
	})
	if err != nil {
		return domain.PageResult{}, err
	}

	if s.Cache != nil {
		// fire and forget; detach from the request's cancellation but keep
		// a bound so a stuck cache write cannot leak the goroutine
		go func(p domain.PageResult) {
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			s.Cache.Set(cctx, fp, p)
		}(page)
	}
	return page, nil
}

// Get implements domain.RecordPort. Detail reads go straight to the
// database; the page cache only keys whole pages.
func (s *Service) Get(ctx context.Context, tenantID, id string) (domain.Requirement, error) {
	return repokit.MustBind(s.Binder, s.DB).GetByID(ctx, tenantID, id)
}

// Create implements domain.WriterPort
func (s *Service) Create(ctx context.Context, in domain.CreateInput) (domain.Requirement, error) {
	var rec domain.Requirement
	err := repokit.WithTx(ctx, s.DB, func(q repokit.Queryer) error {
		var err error
		rec, err = repokit.MustBind(s.Binder, q).Insert(ctx, in)
		return err
	})
	if err != nil {
		return domain.Requirement{}, err
	}

	s.afterWrite(ctx, domain.ChangeInsert, rec, in.ActorID, "requirement.create")
	return rec, nil
}

// Update implements domain.WriterPort
func (s *Service) Update(ctx context.Context, tenantID, id string, patch domain.Patch) (domain.Requirement, error) {
	var rec domain.Requirement
	err := repokit.WithTx(ctx, s.DB, func(q repokit.Queryer) error {
		var err error
		rec, err = repokit.MustBind(s.Binder, q).Update(ctx, tenantID, id, patch.ActorID, patch)
		return err
	})
	if err != nil {
		return domain.Requirement{}, err
	}

	s.afterWrite(ctx, domain.ChangeUpdate, rec, patch.ActorID, "requirement.update")
	return rec, nil
}

// Delete implements domain.WriterPort
func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	var rec domain.Requirement
	err := repokit.WithTx(ctx, s.DB, func(q repokit.Queryer) error {
		st := repokit.MustBind(s.Binder, q)
		var err error
		rec, err = st.GetByID(ctx, tenantID, id)
		if err != nil {
			return err
		}
		return st.Delete(ctx, tenantID, id)
	})
	if err != nil {
		return err
	}

	s.afterWrite(ctx, domain.ChangeDelete, rec, rec.UpdatedBy, "requirement.delete")
	return nil
}

// afterWrite publishes the change event and records the audit trail.
// Neither can fail the write that already committed.
func (s *Service) afterWrite(ctx context.Context, typ domain.ChangeType, rec domain.Requirement, actorID, action string) {
	if s.Notify != nil {
		ev := domain.ChangeEvent{Type: typ, Record: rec, At: timeutil.UTC(timeutil.Now())}
		if err := s.Notify.Publish(ctx, ev); err != nil {
			s.Log.Warn().Err(err).
				Str("type", string(typ)).
				Str("id", rec.ID).
				Msg("change publish failed")
		}
	}
	if s.Audit != nil {
		go func() {
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			s.Audit.Record(cctx, rec.TenantID, actorID, action, rec.ID)
		}()
	}
}
