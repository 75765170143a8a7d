// Package domain defines the persistence models for the offline-first data
// layer: the business entities mirrored from the remote back-office API and
// the pending-operation rows that record mutations performed while offline.
// These types are mapped with GORM and form the core data layer of the
// application.
package domain

import (
	"strings"
	"time"
)

// Client represents a customer of the business. The local row mirrors the
// full denormalized shape returned by the remote API, including the
// server-assigned identifier and audit timestamps.
//
// Fields:
//   - ID: primary key; either a server-assigned id or a temporary id
//     (see NewTempID) for records created while offline.
//   - Code / Name / Email / Phone: searchable attributes; the offline list
//     filter matches substrings against all four.
//   - IsActive: status flag, filterable with equality.
//   - CreatedAt / UpdatedAt: audit timestamps; for offline-created records
//     they are synthesized locally and replaced by the server's values on
//     reconciliation.
//   - DeletedAt: soft-delete marker as reported by the server. The local
//     cache deletes rows outright, so this is a plain nullable column, not
//     gorm.DeletedAt — local reads must never be filtered by it.
type Client struct {
	ID        string     `json:"id"         gorm:"type:varchar(64);primaryKey"`
	Code      string     `json:"code"       gorm:"type:varchar(32);index"`
	Name      string     `json:"name"       gorm:"type:varchar(255);not null"`
	Email     string     `json:"email"      gorm:"type:varchar(255)"`
	Phone     string     `json:"phone"      gorm:"type:varchar(32)"`
	Address   string     `json:"address"    gorm:"type:varchar(255)"`
	IsActive  bool       `json:"is_active"  gorm:"not null;default:true"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at"`
}

// TableName returns the database table name for Client.
func (Client) TableName() string { return "clients" }

// Resource returns the REST collection name for clients.
func (Client) Resource() string { return "clients" }

// GetID returns the record identifier (server-assigned or temporary).
func (c Client) GetID() string { return c.ID }

// WithID returns a copy of the record with the given identifier.
func (c Client) WithID(id string) Client { c.ID = id; return c }

// CreatedTime returns the creation timestamp, used for most-recent-first
// ordering in the offline list.
func (c Client) CreatedTime() time.Time { return c.CreatedAt }

// Stamped returns a copy with UpdatedAt set to now. CreatedAt is also set
// when it is still zero (i.e. for records synthesized offline).
func (c Client) Stamped(now time.Time) Client {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	return c
}

// SearchText returns the concatenation of the fields the server-side search
// matches against. The offline scan folds and substring-matches this text so
// that online and offline lists behave the same.
func (c Client) SearchText() string {
	return strings.Join([]string{c.Code, c.Name, c.Email, c.Phone}, " ")
}

// Active reports the status flag used by the is_active filter.
func (c Client) Active() bool { return c.IsActive }

// Provider represents a supplier of the business. See Client for the
// conventions shared by all mirrored entities.
type Provider struct {
	ID        string     `json:"id"         gorm:"type:varchar(64);primaryKey"`
	Code      string     `json:"code"       gorm:"type:varchar(32);index"`
	Name      string     `json:"name"       gorm:"type:varchar(255);not null"`
	Email     string     `json:"email"      gorm:"type:varchar(255)"`
	Phone     string     `json:"phone"      gorm:"type:varchar(32)"`
	Company   string     `json:"company"    gorm:"type:varchar(255)"`
	IsActive  bool       `json:"is_active"  gorm:"not null;default:true"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at"`
}

// TableName returns the database table name for Provider.
func (Provider) TableName() string { return "providers" }

// Resource returns the REST collection name for providers.
func (Provider) Resource() string { return "providers" }

// GetID returns the record identifier (server-assigned or temporary).
func (p Provider) GetID() string { return p.ID }

// WithID returns a copy of the record with the given identifier.
func (p Provider) WithID(id string) Provider { p.ID = id; return p }

// CreatedTime returns the creation timestamp.
func (p Provider) CreatedTime() time.Time { return p.CreatedAt }

// Stamped returns a copy with UpdatedAt set to now, and CreatedAt when zero.
func (p Provider) Stamped(now time.Time) Provider {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	return p
}

// SearchText returns the text the offline search filter matches against.
func (p Provider) SearchText() string {
	return strings.Join([]string{p.Code, p.Name, p.Email, p.Phone}, " ")
}

// Active reports the status flag used by the is_active filter.
func (p Provider) Active() bool { return p.IsActive }
