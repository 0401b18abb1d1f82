package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/silvermint/idserver/internal/domain"
	"github.com/silvermint/idserver/internal/errors"
)

var adminDuplicates = map[string]errors.Code{
	"admins.name":        errors.CodeAdminDuplicateName,
	"admin_emails.email": errors.CodeAdminDuplicateEmail,
}

type adminQueries struct {
	sq *sql.Tx
}

const adminSelectColumns = "id, name, realname, password_algo, password_hash, password_salt, permissions, created, updated"

func (q adminQueries) Create(ctx context.Context, a domain.Admin) error {
	_, err := q.sq.ExecContext(ctx, `
INSERT INTO admins (id, name, name_fold, realname, realname_fold, password_algo, password_hash, password_salt, permissions, created, updated)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.Name, fold(a.Name), a.RealName, fold(a.RealName),
		a.Password.Algorithm, a.Password.Hash, a.Password.Salt,
		permissionsToText(a.Permissions),
		toMicros(a.Created), toMicros(a.Updated),
	)
	if err != nil {
		return mapConstraint(err, adminDuplicates)
	}
	if err := insertEmails(ctx, q.sq, "admin_emails", "admin_id", a.ID.String(), a.Emails); err != nil {
		return mapConstraint(err, adminDuplicates)
	}
	return nil
}

func (q adminQueries) Get(ctx context.Context, id uuid.UUID) (domain.Admin, error) {
	row := q.sq.QueryRowContext(ctx,
		"SELECT "+adminSelectColumns+" FROM admins WHERE id = ?", id.String())
	return q.scanAdmin(ctx, row)
}

func (q adminQueries) GetByName(ctx context.Context, name string) (domain.Admin, error) {
	row := q.sq.QueryRowContext(ctx,
		"SELECT "+adminSelectColumns+" FROM admins WHERE name = ?", name)
	return q.scanAdmin(ctx, row)
}

func (q adminQueries) Update(ctx context.Context, a domain.Admin) error {
	res, err := q.sq.ExecContext(ctx, `
UPDATE admins
SET name = ?, name_fold = ?, realname = ?, realname_fold = ?,
    password_algo = ?, password_hash = ?, password_salt = ?, permissions = ?, updated = ?
WHERE id = ?`,
		a.Name, fold(a.Name), a.RealName, fold(a.RealName),
		a.Password.Algorithm, a.Password.Hash, a.Password.Salt,
		permissionsToText(a.Permissions),
		toMicros(a.Updated), a.ID.String(),
	)
	if err != nil {
		return mapConstraint(err, adminDuplicates)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update admin: %w", err)
	}
	if affected == 0 {
		return errors.New(errors.CodeAdminNonexistent, "no such admin")
	}
	if err := replaceEmails(ctx, q.sq, "admin_emails", "admin_id", a.ID.String(), a.Emails); err != nil {
		return mapConstraint(err, adminDuplicates)
	}
	return nil
}

func (q adminQueries) Count(ctx context.Context, p domain.SearchParameters) (int64, error) {
	var b searchBuilder
	b.timeRanges(p)
	b.filter(p, "name_fold", "realname_fold")

	var total int64
	row := q.sq.QueryRowContext(ctx, "SELECT COUNT(*) FROM admins"+b.where(), b.args...)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return total, nil
}

func (q adminQueries) Search(ctx context.Context, p domain.SearchParameters, boundary *domain.Admin, backward bool) ([]domain.Admin, error) {
	sortColumn, err := principalColumn(p.Ordering.Column)
	if err != nil {
		return nil, err
	}

	var b searchBuilder
	b.timeRanges(p)
	b.filter(p, "name_fold", "realname_fold")

	fetchAscending, after := fetchDirection(p.Ordering.Ascending, backward)
	if boundary != nil {
		b.keyset(sortColumn, userSortValue(p.Ordering.Column, boundary.AsUser()), "id", boundary.ID.String(), after)
	}

	query := "SELECT " + adminSelectColumns + " FROM admins" + b.where() +
		orderLimit(sortColumn, "id", fetchAscending, p.Limit)
	rows, err := q.sq.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("search admins: %w", err)
	}
	defer rows.Close()

	var admins []domain.Admin
	for rows.Next() {
		a, err := scanAdminRow(rows)
		if err != nil {
			return nil, err
		}
		admins = append(admins, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search admins: %w", err)
	}
	for i := range admins {
		emails, err := loadEmails(ctx, q.sq, "admin_emails", "admin_id", admins[i].ID.String())
		if err != nil {
			return nil, err
		}
		admins[i].Emails = emails
	}
	return admins, nil
}

// permissionsToText serializes a permission set as space-separated stable
// names so the column stays greppable in the raw database.
func permissionsToText(set domain.PermissionSet) string {
	perms := set.Slice()
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = p.String()
	}
	return strings.Join(names, " ")
}

func permissionsFromText(value string) (domain.PermissionSet, error) {
	var set domain.PermissionSet
	for _, name := range strings.Fields(value) {
		p, err := domain.ParsePermission(name)
		if err != nil {
			return domain.PermissionSet{}, fmt.Errorf("stored permissions: %w", err)
		}
		set = set.With(p)
	}
	return set, nil
}

func scanAdminRow(row rowScanner) (domain.Admin, error) {
	var (
		a                sqlUser
		permissions      string
		created, updated int64
	)
	err := row.Scan(&a.id, &a.name, &a.realName, &a.algo, &a.hash, &a.salt, &permissions, &created, &updated)
	if stderrors.Is(err, sql.ErrNoRows) {
		return domain.Admin{}, errors.New(errors.CodeAdminNonexistent, "no such admin")
	}
	if err != nil {
		return domain.Admin{}, fmt.Errorf("scan admin: %w", err)
	}
	id, err := uuid.Parse(a.id)
	if err != nil {
		return domain.Admin{}, fmt.Errorf("parse admin id: %w", err)
	}
	set, err := permissionsFromText(permissions)
	if err != nil {
		return domain.Admin{}, err
	}
	return domain.Admin{
		ID:          id,
		Name:        a.name,
		RealName:    a.realName,
		Created:     fromMicros(created),
		Updated:     fromMicros(updated),
		Password:    domain.Password{Algorithm: a.algo, Hash: a.hash, Salt: a.salt},
		Permissions: set,
	}, nil
}

func (q adminQueries) scanAdmin(ctx context.Context, row rowScanner) (domain.Admin, error) {
	a, err := scanAdminRow(row)
	if err != nil {
		return domain.Admin{}, err
	}
	emails, err := loadEmails(ctx, q.sq, "admin_emails", "admin_id", a.ID.String())
	if err != nil {
		return domain.Admin{}, err
	}
	a.Emails = emails
	return a, nil
}
