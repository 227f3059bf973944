package repo

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"onehub/internal/services/requirements/domain"
)

// searchColumns are the free-text columns matched by the OR search block
var searchColumns = []string{
	"title",
	"company",
	"tech_stack",
	"description",
	"location",
	"vendor_name",
	"vendor_email",
}

// sanitizeSearch strips control characters and escapes LIKE metacharacters
// so a term is only ever matched literally. Backslash first, it is the
// escape character itself.
func sanitizeSearch(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		switch r {
		case '\\', '%', '_':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// isAllDigits reports whether s is a non-empty run of ASCII digits
func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// isUUIDShaped reports whether s parses as a UUID
func isUUIDShaped(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// listQuery renders the descriptor into one SELECT with numbered args.
// Filters with unusable values are dropped, never errored.
func listQuery(d domain.QueryDescriptor, limit int) (string, []any) {
	var sb strings.Builder
	var args []any
	arg := func(v any) string { args = append(args, v); return fmt.Sprintf("$%d", len(args)) }

	sb.WriteString(`
		SELECT
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
			r.updated_by::text
		FROM requirements r
	`)

	where := whereClause(d, arg)
	sb.WriteString("WHERE " + where + "\n")

	col := "r." + d.Sort.Column()
	dir := "DESC"
	op := "<"
	if d.Dir == domain.SortAsc {
		dir = "ASC"
		op = ">"
	}

	// keyset continuation: strict tuple inequality against the last seen row,
	// operator polarity follows the sort direction
	if d.Cursor != nil && d.Cursor.ID != "" {
		if key, ok := cursorKeyArg(d.Sort, d.Cursor.Key); ok {
			sb.WriteString("  AND (" + col + ", r.id) " + op + " (" + arg(key) + ", " + arg(d.Cursor.ID) + "::uuid)\n")
		}
	}

	sb.WriteString("ORDER BY " + col + " " + dir + ", r.id " + dir + "\n")
	sb.WriteString("LIMIT " + arg(limit))

	// offset windowing only without a cursor; keyset is preferred for anything
	// past the first page because large offsets skip and duplicate rows under
	// concurrent inserts
	if d.Cursor == nil && d.Page > 0 {
		sb.WriteString(" OFFSET " + arg(d.Page*d.PageSize))
	}

	return sb.String(), args
}

// countQuery renders the same filters as listQuery without the window
func countQuery(d domain.QueryDescriptor) (string, []any) {
	var args []any
	arg := func(v any) string { args = append(args, v); return fmt.Sprintf("$%d", len(args)) }

	where := whereClause(d, arg)
	return "SELECT count(*) FROM requirements r WHERE " + where, args
}

// whereClause appends every applicable filter; tenant scope always applies
func whereClause(d domain.QueryDescriptor, arg func(any) string) string {
	var sb strings.Builder

	sb.WriteString("r.tenant_id = " + arg(d.TenantID) + "::uuid\n")

	// status equality only for recognized stages; anything else is user noise
	if st, ok := domain.ParseStatus(d.Status); ok {
		sb.WriteString("  AND r.status = " + arg(string(st)) + "\n")
	}
	if rm, ok := domain.ParseRemote(d.Remote); ok {
		sb.WriteString("  AND r.remote = " + arg(string(rm)) + "\n")
	}

	if term := sanitizeSearch(d.Search); term != "" {
		pat := "%" + term + "%"
		var ors []string
		for _, c := range searchColumns {
			ors = append(ors, "r."+c+" ILIKE "+arg(pat)+" ESCAPE '\\'")
		}

		// shape-based fast paths; purely additive, skipped when the term
		// does not look like an id or address
		raw := strings.TrimSpace(d.Search)
		switch {
		case isAllDigits(raw):
			if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
				ors = append(ors, "r.display_number = "+arg(n))
			}
		case isUUIDShaped(raw):
			ors = append(ors, "r.id = "+arg(raw)+"::uuid")
		case strings.Contains(raw, "@"):
			ors = append(ors, "lower(r.vendor_email) = "+arg(strings.ToLower(raw)))
		}

		sb.WriteString("  AND (" + strings.Join(ors, " OR ") + ")\n")
	}

	if d.RateMin != nil {
		sb.WriteString("  AND r.rate >= " + arg(*d.RateMin) + "\n")
	}
	if d.RateMax != nil {
		sb.WriteString("  AND r.rate <= " + arg(*d.RateMax) + "\n")
	}
	if d.CreatedFrom != nil {
		sb.WriteString("  AND r.created_at >= " + arg(*d.CreatedFrom) + "\n")
	}
	if d.CreatedTo != nil {
		sb.WriteString("  AND r.created_at <= " + arg(*d.CreatedTo) + "\n")
	}

	return sb.String()
}

// cursorKeyArg converts the serialized cursor key back into the sort
// column's native type. A key that does not parse disables the keyset
// clause rather than failing the query.
func cursorKeyArg(f domain.SortField, key string) (any, bool) {
	switch f {
	case domain.SortByCreatedAt, domain.SortByUpdatedAt:
		t, err := time.Parse(time.RFC3339Nano, key)
		if err != nil {
			return nil, false
		}
		return t, true
	case domain.SortByRate:
		v, err := strconv.ParseFloat(key, 64)
		if err != nil {
			return nil, false
		}
		return v, true
	case domain.SortByDisplayNumber:
		n, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, false
		}
		return n, true
	default:
		return key, key != ""
	}
}
