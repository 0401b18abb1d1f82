// Package storage defines the transaction abstraction the command executor
// works through. The core never issues SQL; implementations translate these
// operations and surface domain invariant violations as classified errors
// (duplicate names and emails, missing records), never raw driver errors.
package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/silvermint/idserver/internal/domain"
)

// DB opens request-scoped transactions.
type DB interface {
	// Begin opens one transaction. Each request owns exactly one; it is
	// never shared across requests or held beyond the request's lifetime.
	Begin(ctx context.Context) (Tx, error)
	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Tx is one open transaction. Rollback after Commit is a no-op, so deferring
// Rollback is always safe.
type Tx interface {
	Users() UserQueries
	Admins() AdminQueries
	Bans() BanQueries
	Audit() AuditQueries
	Commit() error
	Rollback() error
}

// UserQueries operates on user principals inside a transaction.
type UserQueries interface {
	Create(ctx context.Context, u domain.User) error
	Get(ctx context.Context, id uuid.UUID) (domain.User, error)
	GetByName(ctx context.Context, name string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	// Update replaces name, real name, password, and emails.
	Update(ctx context.Context, u domain.User) error
	Delete(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context, p domain.SearchParameters) (int64, error)
	// Search implements the pagination source contract: nil boundary starts
	// at the first page; backward fetches the rows preceding the boundary in
	// reverse order.
	Search(ctx context.Context, p domain.SearchParameters, boundary *domain.User, backward bool) ([]domain.User, error)
}

// AdminQueries operates on admin principals inside a transaction.
type AdminQueries interface {
	Create(ctx context.Context, a domain.Admin) error
	Get(ctx context.Context, id uuid.UUID) (domain.Admin, error)
	GetByName(ctx context.Context, name string) (domain.Admin, error)
	// Update replaces name, real name, password, emails, and permissions.
	Update(ctx context.Context, a domain.Admin) error
	Count(ctx context.Context, p domain.SearchParameters) (int64, error)
	Search(ctx context.Context, p domain.SearchParameters, boundary *domain.Admin, backward bool) ([]domain.Admin, error)
}

// BanQueries operates on principal bans inside a transaction.
type BanQueries interface {
	// Upsert creates or replaces the principal's ban.
	Upsert(ctx context.Context, b domain.Ban) error
	// Get returns nil when the principal has no ban.
	Get(ctx context.Context, principalID uuid.UUID) (*domain.Ban, error)
	// Delete reports whether a ban existed. Deleting an absent ban is not
	// an error.
	Delete(ctx context.Context, principalID uuid.UUID) (bool, error)
}

// AuditQueries appends to and searches the audit log inside a transaction.
type AuditQueries interface {
	// Append records one event. The store assigns the sequence number.
	Append(ctx context.Context, e domain.AuditEvent) error
	Count(ctx context.Context, p domain.SearchParameters) (int64, error)
	Search(ctx context.Context, p domain.SearchParameters, boundary *domain.AuditEvent, backward bool) ([]domain.AuditEvent, error)
}
