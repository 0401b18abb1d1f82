package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/silvermint/idserver/internal/domain"
)

type banQueries struct {
	sq *sql.Tx
}

func (q banQueries) Upsert(ctx context.Context, b domain.Ban) error {
	var expires sql.NullInt64
	if b.Expires != nil {
		expires = sql.NullInt64{Int64: toMicros(*b.Expires), Valid: true}
	}
	_, err := q.sq.ExecContext(ctx, `
INSERT INTO bans (principal_id, reason, expires) VALUES (?, ?, ?)
ON CONFLICT (principal_id) DO UPDATE SET reason = excluded.reason, expires = excluded.expires`,
		b.PrincipalID.String(), b.Reason, expires,
	)
	if err != nil {
		return fmt.Errorf("upsert ban: %w", err)
	}
	return nil
}

func (q banQueries) Get(ctx context.Context, principalID uuid.UUID) (*domain.Ban, error) {
	row := q.sq.QueryRowContext(ctx,
		"SELECT reason, expires FROM bans WHERE principal_id = ?", principalID.String())

	var (
		reason  string
		expires sql.NullInt64
	)
	err := row.Scan(&reason, &expires)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ban: %w", err)
	}

	ban := &domain.Ban{PrincipalID: principalID, Reason: reason}
	if expires.Valid {
		at := fromMicros(expires.Int64)
		ban.Expires = &at
	}
	return ban, nil
}

func (q banQueries) Delete(ctx context.Context, principalID uuid.UUID) (bool, error) {
	res, err := q.sq.ExecContext(ctx, "DELETE FROM bans WHERE principal_id = ?", principalID.String())
	if err != nil {
		return false, fmt.Errorf("delete ban: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete ban: %w", err)
	}
	return affected > 0, nil
}
