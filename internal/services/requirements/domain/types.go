// Package domain defines the types and interfaces for the requirements service
package domain

import (
	"time"
)

// Status is the requirement pipeline stage
type Status string

// Pipeline stages, in rough lifecycle order
const (
	StatusNew        Status = "NEW"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSubmitted  Status = "SUBMITTED"
	StatusInterview  Status = "INTERVIEW"
	StatusOffer      Status = "OFFER"
	StatusRejected   Status = "REJECTED"
	StatusClosed     Status = "CLOSED"
)

// ParseStatus returns the Status for s and whether it is a recognized stage
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusNew, StatusInProgress, StatusSubmitted, StatusInterview, StatusOffer, StatusRejected, StatusClosed:
		return Status(s), true
	}
	return "", false
}

// Remote classifies the work arrangement of a requirement
type Remote string

// Work arrangements
const (
	RemoteYes    Remote = "REMOTE"
	RemoteOnsite Remote = "ONSITE"
	RemoteHybrid Remote = "HYBRID"
)

// ParseRemote returns the Remote for s and whether it is recognized
func ParseRemote(s string) (Remote, bool) {
	switch Remote(s) {
	case RemoteYes, RemoteOnsite, RemoteHybrid:
		return Remote(s), true
	}
	return "", false
}

// Requirement is one job requirement owned by a tenant account
type Requirement struct {
	ID            string    `json:"id"`
	DisplayNumber int64     `json:"display_number"`
	TenantID      string    `json:"tenant_id"`
	Status        Status    `json:"status"`
	Title         string    `json:"title"`
	Company       string    `json:"company"`
	Description   string    `json:"description"`
	TechStack     string    `json:"tech_stack"`
	Location      string    `json:"location"`
	VendorName    string    `json:"vendor_name"`
	VendorEmail   string    `json:"vendor_email"`
	VendorPhone   string    `json:"vendor_phone"`
	Rate          float64   `json:"rate"`
	Remote        Remote    `json:"remote"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	CreatedBy     string    `json:"created_by"`
	UpdatedBy     string    `json:"updated_by"`
}

// SortField is the closed set of columns a listing may be ordered by.
// Anything outside this union never reaches the store.
type SortField uint8

// Sortable fields
const (
	SortByCreatedAt SortField = iota
	SortByUpdatedAt
	SortByRate
	SortByCompany
	SortByDisplayNumber
	SortByStatus
)

// Column returns the store column for the sort field
func (f SortField) Column() string {
	switch f {
	case SortByUpdatedAt:
		return "updated_at"
	case SortByRate:
		return "rate"
	case SortByCompany:
		return "company"
	case SortByDisplayNumber:
		return "display_number"
	case SortByStatus:
		return "status"
	default:
		return "created_at"
	}
}

// String returns the wire name for the sort field
func (f SortField) String() string {
	switch f {
	case SortByUpdatedAt:
		return "updated_at"
	case SortByRate:
		return "rate"
	case SortByCompany:
		return "company"
	case SortByDisplayNumber:
		return "display_number"
	case SortByStatus:
		return "status"
	default:
		return "created_at"
	}
}

// ParseSortField maps a wire name to a SortField, defaulting to created_at
func ParseSortField(s string) SortField {
	switch s {
	case "updated_at":
		return SortByUpdatedAt
	case "rate":
		return SortByRate
	case "company":
		return SortByCompany
	case "display_number":
		return SortByDisplayNumber
	case "status":
		return SortByStatus
	default:
		return SortByCreatedAt
	}
}

// SortDir is the ordering direction
type SortDir uint8

// Directions
const (
	SortDesc SortDir = iota
	SortAsc
)

// String returns "desc" or "asc"
func (d SortDir) String() string {
	if d == SortAsc {
		return "asc"
	}
	return "desc"
}

// ParseSortDir maps a wire name to a SortDir, defaulting to descending
func ParseSortDir(s string) SortDir {
	if s == "asc" {
		return SortAsc
	}
	return SortDesc
}

// Cursor is a keyset continuation token: the sort-column value and the id of
// the last row already seen. Key is the serialized column value (RFC3339Nano
// for times, decimal text for numbers, raw text otherwise).
type Cursor struct {
	Key string `json:"k"`
	ID  string `json:"id"`
}

// QueryDescriptor is the canonical representation of one page request.
// Two descriptors with identical field values fingerprint identically
// regardless of how they were assembled.
type QueryDescriptor struct {
	TenantID string
	Page     int
	PageSize int
	Cursor   *Cursor

	Search string
	Status string // raw filter value; unrecognized stages are ignored by the query builder
	Remote string

	RateMin *float64
	RateMax *float64

	CreatedFrom *time.Time
	CreatedTo   *time.Time

	Sort SortField
	Dir  SortDir
}

// Normalize returns a copy with defaults applied and zero-noise removed
func (d QueryDescriptor) Normalize() QueryDescriptor {
	if d.PageSize <= 0 {
		d.PageSize = DefaultPageSize
	}
	if d.Page < 0 {
		d.Page = 0
	}
	return d
}

// Unfiltered reports whether the descriptor carries no filters at all,
// i.e. the canonical "page one, no filters" listing when Page==0
func (d QueryDescriptor) Unfiltered() bool {
	return d.Search == "" && d.Status == "" && d.Remote == "" &&
		d.RateMin == nil && d.RateMax == nil &&
		d.CreatedFrom == nil && d.CreatedTo == nil
}

// DefaultPageSize is applied when a descriptor does not set one
const DefaultPageSize = 20

// PageResult is an immutable snapshot of one fetched page.
// Updates never mutate a PageResult in place; the reducers in page.go
// produce new values, since a result may be aliased by multiple cache entries.
type PageResult struct {
	Rows    []Requirement `json:"rows"`
	HasMore bool          `json:"has_more"`
	Total   *int64        `json:"total,omitempty"`
	Next    *Cursor       `json:"next,omitempty"`
}
