// Package audit records write-path actions. The trail is append-only and
// best-effort; a failed insert is logged and forgotten.
package audit

import (
	"context"

	"onehub/internal/modkit/repokit"
	"onehub/internal/platform/logger"
	"onehub/internal/platform/store"
	"onehub/internal/platform/timeutil"
)

// Recorder implements domain.AuditPort over Postgres
type Recorder struct {
	db  repokit.TxRunner
	log logger.Logger
}

// New builds a Recorder
func New(db repokit.TxRunner, log logger.Logger) *Recorder {
	return &Recorder{db: db, log: log.With().Str("component", "audit").Logger()}
}

// Record appends one audit row; errors are swallowed after logging
func (r *Recorder) Record(ctx context.Context, tenantID, actorID, action, recordID string) {
	err := store.ExecOne(ctx, r.db, `
		INSERT INTO audit_log (tenant_id, actor_id, action, record_id, at)
		VALUES ($1::uuid, $2::uuid, $3, $4::uuid, $5)
	`, tenantID, actorID, action, recordID, timeutil.UTC(timeutil.Now()))
	if err != nil {
		r.log.Warn().Err(err).
			Str("action", action).
			Str("record", recordID).
			Msg("audit insert failed")
	}
}
