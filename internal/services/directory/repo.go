package directory

import (
	"context"
	stderrs "errors"

	"github.com/jackc/pgx/v5"

	"onehub/internal/modkit/repokit"
	perr "onehub/internal/platform/errors"
)

type binder struct{}

// NewPG constructs a repo binder for the users table
func NewPG() repokit.Binder[ReaderPort] { return binder{} }

// Bind implements repokit.Binder
func (binder) Bind(q repokit.Queryer) ReaderPort { return &pg{q: q} }

type pg struct{ q repokit.Queryer }

// DisplayName implements ReaderPort
func (s *pg) DisplayName(ctx context.Context, userID string) (string, error) {
	var name string
	err := s.q.QueryRow(ctx, `
		SELECT display_name FROM users WHERE id = $1::uuid
	`, userID).Scan(&name)
	if err != nil {
		if stderrs.Is(err, pgx.ErrNoRows) {
			return "", perr.NotFoundf("user %s not found", userID)
		}
		return "", perr.FromPostgres(err, "lookup display name")
	}
	return name, nil
}
