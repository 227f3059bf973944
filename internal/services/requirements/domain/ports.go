package domain

import (
	"context"
	"time"
)

// FetchOptions tunes one FetchPage call
type FetchOptions struct {
	// WithTotal requests an exact count of rows matching the filters.
	// Counting is comparatively expensive; callers ask for it only on the
	// first page of a fresh filter combination and reuse the value after.
	WithTotal bool
}

// QueryPort serves pages of requirements
type QueryPort interface {
	FetchPage(ctx context.Context, d QueryDescriptor, opts FetchOptions) (PageResult, error)
}

// RecordPort reads one requirement by id
type RecordPort interface {
	Get(ctx context.Context, tenantID, id string) (Requirement, error)
}

// WriterPort mutates single requirements
type WriterPort interface {
	Create(ctx context.Context, in CreateInput) (Requirement, error)
	Update(ctx context.Context, tenantID, id string, patch Patch) (Requirement, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// CreateInput carries the fields of a new requirement
type CreateInput struct {
	TenantID    string  `json:"-"`
	Title       string  `json:"title" validate:"required,max=300"`
	Company     string  `json:"company" validate:"max=300"`
	Description string  `json:"description"`
	TechStack   string  `json:"tech_stack"`
	Location    string  `json:"location"`
	VendorName  string  `json:"vendor_name"`
	VendorEmail string  `json:"vendor_email" validate:"omitempty,email"`
	VendorPhone string  `json:"vendor_phone"`
	Rate        float64 `json:"rate" validate:"gte=0"`
	Remote      string  `json:"remote"`
	ActorID     string  `json:"-"`
}

// Patch is a partial update; nil fields are left as they are
type Patch struct {
	Status      *string  `json:"status,omitempty"`
	Title       *string  `json:"title,omitempty" validate:"omitempty,max=300"`
	Company     *string  `json:"company,omitempty" validate:"omitempty,max=300"`
	Description *string  `json:"description,omitempty"`
	TechStack   *string  `json:"tech_stack,omitempty"`
	Location    *string  `json:"location,omitempty"`
	VendorName  *string  `json:"vendor_name,omitempty"`
	VendorEmail *string  `json:"vendor_email,omitempty" validate:"omitempty,email"`
	VendorPhone *string  `json:"vendor_phone,omitempty"`
	Rate        *float64 `json:"rate,omitempty" validate:"omitempty,gte=0"`
	Remote      *string  `json:"remote,omitempty"`
	ActorID     string   `json:"-"`
}

// Empty reports whether the patch changes nothing
func (p Patch) Empty() bool {
	return p.Status == nil && p.Title == nil && p.Company == nil &&
		p.Description == nil && p.TechStack == nil && p.Location == nil &&
		p.VendorName == nil && p.VendorEmail == nil && p.VendorPhone == nil &&
		p.Rate == nil && p.Remote == nil
}

// PageCachePort is the shared (cross-client) page cache.
// Get reports a miss as ok=false; Set is best-effort and never fails the
// read that triggered it.
type PageCachePort interface {
	Get(ctx context.Context, fingerprint string) (PageResult, bool)
	Set(ctx context.Context, fingerprint string, page PageResult)
}

// SnapshotPort is the embedded per-user offline mirror of the first page
type SnapshotPort interface {
	SaveSnapshot(ctx context.Context, userID string, rows []Requirement) error
	// LoadSnapshot returns nil rows (and no error) when no snapshot exists;
	// an expired snapshot is returned only when allowStale is set
	LoadSnapshot(ctx context.Context, userID string, allowStale bool) ([]Requirement, error)
}

// ChangeType classifies a change notification
type ChangeType string

// Notification kinds
const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent is one record-level change pushed to subscribers
type ChangeEvent struct {
	Type   ChangeType  `json:"type"`
	Record Requirement `json:"record"`
	At     time.Time   `json:"at"`
}

// NotifierPort publishes change events for a tenant
type NotifierPort interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

// AuditPort records write-path audit events. Calls are fire-and-forget:
// the write path never fails on an audit error.
type AuditPort interface {
	Record(ctx context.Context, tenantID, actorID, action, recordID string)
}
