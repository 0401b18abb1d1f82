package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/silvermint/idserver/internal/domain"
)

type auditQueries struct {
	sq *sql.Tx
}

func (q auditQueries) Append(ctx context.Context, e domain.AuditEvent) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("encode audit data: %w", err)
	}
	_, err = q.sq.ExecContext(ctx,
		"INSERT INTO audit (time, actor, type, data) VALUES (?, ?, ?, ?)",
		toMicros(e.Time), e.Actor.String(), e.Type, string(data),
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (q auditQueries) Count(ctx context.Context, p domain.SearchParameters) (int64, error) {
	var b searchBuilder
	auditConds(&b, p)

	var total int64
	row := q.sq.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit"+b.where(), b.args...)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return total, nil
}

func (q auditQueries) Search(ctx context.Context, p domain.SearchParameters, boundary *domain.AuditEvent, backward bool) ([]domain.AuditEvent, error) {
	sortColumn := auditSortColumn(p.Ordering.Column)

	var b searchBuilder
	auditConds(&b, p)

	fetchAscending, after := fetchDirection(p.Ordering.Ascending, backward)
	if boundary != nil {
		b.keyset(sortColumn, auditSortValue(p.Ordering.Column, *boundary), "seq", boundary.Seq, after)
	}

	query := "SELECT seq, time, actor, type, data FROM audit" + b.where() +
		orderLimit(sortColumn, "seq", fetchAscending, p.Limit)
	rows, err := q.sq.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("search audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		e, err := scanAuditRow(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search audit events: %w", err)
	}
	return events, nil
}

// auditConds applies the creation time range to the event time and matches
// the filter against event type and actor. Audit rows are append-only, so the
// update range has nothing to constrain and is ignored.
func auditConds(b *searchBuilder, p domain.SearchParameters) {
	b.add("time >= ? AND time <= ?", toMicros(p.Created.Lower), toMicros(p.Created.Upper))
	if p.Filter != "" {
		pattern := likePattern(p.Filter)
		b.add(`(type LIKE ? ESCAPE '\' OR actor LIKE ? ESCAPE '\')`, pattern, pattern)
	}
}

// auditSortColumn maps ordering onto the two columns audit rows sort by.
// Identifier ordering means sequence order; everything else is time order.
func auditSortColumn(c domain.Column) string {
	if c == domain.ColumnByID {
		return "seq"
	}
	return "time"
}

func auditSortValue(c domain.Column, e domain.AuditEvent) any {
	if c == domain.ColumnByID {
		return e.Seq
	}
	return toMicros(e.Time)
}

func scanAuditRow(row rowScanner) (domain.AuditEvent, error) {
	var (
		e           domain.AuditEvent
		micros      int64
		actor, data string
	)
	if err := row.Scan(&e.Seq, &micros, &actor, &e.Type, &data); err != nil {
		return domain.AuditEvent{}, fmt.Errorf("scan audit event: %w", err)
	}
	id, err := uuid.Parse(actor)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("parse audit actor: %w", err)
	}
	e.Actor = id
	e.Time = fromMicros(micros)
	if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
		return domain.AuditEvent{}, fmt.Errorf("decode audit data: %w", err)
	}
	return e, nil
}
