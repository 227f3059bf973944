package module

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"onehub/internal/modkit/httpkit"
	perr "onehub/internal/platform/errors"
	pstrings "onehub/internal/platform/strings"
	"onehub/internal/platform/timeutil"
	"onehub/internal/services/directory"
	"onehub/internal/services/requirements/domain"
)

type handlers struct {
	query  domain.QueryPort
	record domain.RecordPort
	writer domain.WriterPort
	names  directory.ReaderPort
}

// list serves GET /requirements
func (h handlers) list(r *http.Request) (any, error) {
	tenantID, err := httpkit.Tenant(r)
	if err != nil {
		return nil, err
	}

	d, err := descriptorFromQuery(r, tenantID)
	if err != nil {
		return nil, err
	}
	withTotal := r.URL.Query().Get("with_total") == "true"

	page, err := h.query.FetchPage(r.Context(), d, domain.FetchOptions{WithTotal: withTotal})
	if err != nil {
		return nil, err
	}

	meta := httpkit.Page{
		Page:     d.Page,
		PageSize: d.PageSize,
		HasMore:  page.HasMore,
		Cursor:   encodeCursor(page.Next),
	}
	if page.Total != nil {
		meta.Total = int(*page.Total)
	}
	return httpkit.List(page.Rows, meta), nil
}

// create serves POST /requirements
func (h handlers) create(r *http.Request, in domain.CreateInput) (any, error) {
	tenantID, err := httpkit.Tenant(r)
	if err != nil {
		return nil, err
	}
	userID, err := httpkit.User(r)
	if err != nil {
		return nil, err
	}
	in.TenantID = tenantID
	in.ActorID = userID

	rec, err := h.writer.Create(r.Context(), in)
	if err != nil {
		return nil, err
	}
	return httpkit.Created(rec), nil
}

// detailBody is a requirement with its actor ids resolved to display names
type detailBody struct {
	domain.Requirement
	CreatedByName string `json:"created_by_name,omitempty"`
	UpdatedByName string `json:"updated_by_name,omitempty"`
}

// detail serves GET /requirements/{id}
func (h handlers) detail(r *http.Request) (any, error) {
	tenantID, err := httpkit.Tenant(r)
	if err != nil {
		return nil, err
	}
	id := chi.URLParam(r, "id")
	if id == "" {
		return nil, perr.InvalidArgf("missing requirement id")
	}

	rec, err := h.record.Get(r.Context(), tenantID, id)
	if err != nil {
		return nil, err
	}

	body := detailBody{Requirement: rec}
	body.CreatedByName = h.displayName(r.Context(), rec.CreatedBy)
	if rec.UpdatedBy == rec.CreatedBy {
		body.UpdatedByName = body.CreatedByName
	} else {
		body.UpdatedByName = h.displayName(r.Context(), rec.UpdatedBy)
	}
	return body, nil
}

// displayName is best-effort; a failed lookup leaves the name blank
func (h handlers) displayName(ctx context.Context, userID string) string {
	if h.names == nil || userID == "" {
		return ""
	}
	name, err := h.names.DisplayName(ctx, userID)
	if err != nil {
		return ""
	}
	return name
}

// update serves PUT or PATCH /requirements/{id}
func (h handlers) update(r *http.Request, patch domain.Patch) (any, error) {
	tenantID, err := httpkit.Tenant(r)
	if err != nil {
		return nil, err
	}
	userID, err := httpkit.User(r)
	if err != nil {
		return nil, err
	}
	id := chi.URLParam(r, "id")
	if id == "" {
		return nil, perr.InvalidArgf("missing requirement id")
	}
	patch.ActorID = userID

	rec, err := h.writer.Update(r.Context(), tenantID, id, patch)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// remove serves DELETE /requirements/{id}
func (h handlers) remove(r *http.Request) (any, error) {
	tenantID, err := httpkit.Tenant(r)
	if err != nil {
		return nil, err
	}
	id := chi.URLParam(r, "id")
	if id == "" {
		return nil, perr.InvalidArgf("missing requirement id")
	}

	if err := h.writer.Delete(r.Context(), tenantID, id); err != nil {
		return nil, err
	}
	return httpkit.NoContent(), nil
}

// descriptorFromQuery binds list query params. Unusable filter values are
// dropped, matching the query builder; only a malformed cursor is an error
// since it silently breaks continuation otherwise.
func descriptorFromQuery(r *http.Request, tenantID string) (domain.QueryDescriptor, error) {
	q := r.URL.Query()
	d := domain.QueryDescriptor{
		TenantID: tenantID,
		Search:   pstrings.CollapseSpace(q.Get("q")),
		Status:   q.Get("status"),
		Remote:   q.Get("remote"),
	}

	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			d.Page = n
		}
	}
	if v := q.Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			d.PageSize = n
		}
	}
	if v := q.Get("rate_min"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			d.RateMin = &f
		}
	}
	if v := q.Get("rate_max"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			d.RateMax = &f
		}
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			d.CreatedFrom = timeutil.Ptr(t)
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			d.CreatedTo = timeutil.Ptr(t)
		}
	}
	if v := q.Get("sort"); v != "" {
		d.Sort = domain.ParseSortField(v)
	}
	if v := q.Get("dir"); v != "" {
		d.Dir = domain.ParseSortDir(v)
	}

	if v := q.Get("cursor"); v != "" {
		c, err := decodeCursor(v)
		if err != nil {
			return domain.QueryDescriptor{}, perr.Newf(perr.ErrorCodeValidation, "malformed cursor")
		}
		d.Cursor = c
	}
	return d.Normalize(), nil
}

// encodeCursor renders a continuation token as base64url JSON
func encodeCursor(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(s string) (*domain.Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	var c domain.Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	if c.ID == "" {
		return nil, perr.InvalidArgf("cursor missing id")
	}
	return &c, nil
}
