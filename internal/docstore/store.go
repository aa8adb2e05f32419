// Package docstore defines the hierarchical document storage the ledger is built on.
// Documents carry a parent link, a status and a string-keyed metadata map; the ledger
// never reaches beneath this interface.
package docstore

import (
	"context"
	"errors"
	"time"
)

// Kind tags what a document represents.
type Kind string

const (
	KindPeriod  Kind = "period"
	KindAccount Kind = "account"
	KindRecord  Kind = "record"
)

// Status is the lifecycle field stored on every document.
type Status string

const (
	StatusPublic Status = "public"
	StatusClosed Status = "closed"
	StatusTrash  Status = "trash"
)

// TrashStatusKey remembers the status a document had before it was trashed.
const TrashStatusKey = "_trash_meta_status"

var (
	// ErrNotFound indicates the document does not exist.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrInvalidKind indicates an unsupported document kind.
	ErrInvalidKind = errors.New("docstore: invalid kind")
)

// Document is the core row of a stored entity, without its metadata.
type Document struct {
	ID        int64
	ParentID  int64
	Kind      Kind
	Status    Status
	AuthorID  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Live reports whether the document has not been trashed.
func (d Document) Live() bool {
	return d.Status != StatusTrash
}

// Store is the contract every storage adapter implements.
type Store interface {
	CreateDocument(ctx context.Context, kind Kind, parentID int64, status Status, authorID int64) (int64, error)
	GetDocument(ctx context.Context, id int64) (Document, error)
	SetStatus(ctx context.Context, id int64, status Status) error
	DeleteDocument(ctx context.Context, id int64, hard bool) error
	TrashDocument(ctx context.Context, id int64) error
	UntrashDocument(ctx context.Context, id int64) error

	GetMeta(ctx context.Context, id int64, key string) (any, bool, error)
	SetMeta(ctx context.Context, id int64, key string, value any) error
	DeleteMeta(ctx context.Context, id int64, key string) error

	QueryChildren(ctx context.Context, parentID int64, kind Kind, statuses ...Status) ([]int64, error)
	QueryDocuments(ctx context.Context, kind Kind, statuses ...Status) ([]int64, error)
}

// LiveStatuses lists every status except trash.
func LiveStatuses() []Status {
	return []Status{StatusPublic, StatusClosed}
}

// ValidKind reports whether k is a known document kind.
func ValidKind(k Kind) bool {
	switch k {
	case KindPeriod, KindAccount, KindRecord:
		return true
	default:
		return false
	}
}

// ValidStatus reports whether s is a known status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPublic, StatusClosed, StatusTrash:
		return true
	default:
		return false
	}
}

// MatchStatus reports whether status is contained in filter. An empty filter matches all.
func MatchStatus(status Status, filter []Status) bool {
	if len(filter) == 0 {
		return true
	}
	for _, s := range filter {
		if s == status {
			return true
		}
	}
	return false
}
