package server

import (
	"context"

	"github.com/google/uuid"

	"github.com/silvermint/idserver/internal/session"
	"github.com/silvermint/idserver/internal/storage"
)

// request carries the per-request state handlers operate on: the assigned
// request id, the authenticated session, and the single open transaction.
type request struct {
	ID      uuid.UUID
	Session session.Session
	Tx      storage.Tx
}

type txKey struct{}

// withTx exposes the request transaction through the context so that
// pagination sources, which outlive any one request, always query through
// the transaction of the request navigating them.
func withTx(ctx context.Context, tx storage.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func txFromContext(ctx context.Context) (storage.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(storage.Tx)
	return tx, ok
}
