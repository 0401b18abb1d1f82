package server

import (
	"context"
	"sync"

	"github.com/silvermint/idserver/internal/domain"
	"github.com/silvermint/idserver/internal/errors"
	"github.com/silvermint/idserver/internal/pagination"
)

// Pagination sources resolve the navigating request's transaction from the
// context. Cursors live across requests; transactions never do.

type userSource struct{}

func (userSource) Count(ctx context.Context, p domain.SearchParameters) (int64, error) {
	tx, ok := txFromContext(ctx)
	if !ok {
		return 0, errors.New(errors.CodeIOError, "no transaction for search")
	}
	return tx.Users().Count(ctx, p)
}

func (userSource) Search(ctx context.Context, p domain.SearchParameters, boundary *domain.User, backward bool) ([]domain.User, error) {
	tx, ok := txFromContext(ctx)
	if !ok {
		return nil, errors.New(errors.CodeIOError, "no transaction for search")
	}
	return tx.Users().Search(ctx, p, boundary, backward)
}

type adminSource struct{}

func (adminSource) Count(ctx context.Context, p domain.SearchParameters) (int64, error) {
	tx, ok := txFromContext(ctx)
	if !ok {
		return 0, errors.New(errors.CodeIOError, "no transaction for search")
	}
	return tx.Admins().Count(ctx, p)
}

func (adminSource) Search(ctx context.Context, p domain.SearchParameters, boundary *domain.Admin, backward bool) ([]domain.Admin, error) {
	tx, ok := txFromContext(ctx)
	if !ok {
		return nil, errors.New(errors.CodeIOError, "no transaction for search")
	}
	return tx.Admins().Search(ctx, p, boundary, backward)
}

type auditSource struct{}

func (auditSource) Count(ctx context.Context, p domain.SearchParameters) (int64, error) {
	tx, ok := txFromContext(ctx)
	if !ok {
		return 0, errors.New(errors.CodeIOError, "no transaction for search")
	}
	return tx.Audit().Count(ctx, p)
}

func (auditSource) Search(ctx context.Context, p domain.SearchParameters, boundary *domain.AuditEvent, backward bool) ([]domain.AuditEvent, error) {
	tx, ok := txFromContext(ctx)
	if !ok {
		return nil, errors.New(errors.CodeIOError, "no transaction for search")
	}
	return tx.Audit().Search(ctx, p, boundary, backward)
}

// sessionSearches holds one open cursor per collection for one session.
// A new SearchBegin replaces the collection's cursor.
type sessionSearches struct {
	users  *pagination.Cursor[domain.User]
	admins *pagination.Cursor[domain.Admin]
	audits *pagination.Cursor[domain.AuditEvent]
}

// searchRegistry tracks open search cursors per session token. Cursors are
// dropped with their session.
type searchRegistry struct {
	mu      sync.Mutex
	byToken map[string]*sessionSearches
}

func newSearchRegistry() *searchRegistry {
	return &searchRegistry{byToken: make(map[string]*sessionSearches)}
}

// forSession returns the session's search state, creating it on first use.
func (r *searchRegistry) forSession(token string) *sessionSearches {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.byToken[token]
	if !ok {
		state = &sessionSearches{}
		r.byToken[token] = state
	}
	return state
}

// drop releases all cursors for the given session tokens.
func (r *searchRegistry) drop(tokens ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, token := range tokens {
		delete(r.byToken, token)
	}
}
