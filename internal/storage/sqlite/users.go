package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/silvermint/idserver/internal/domain"
	"github.com/silvermint/idserver/internal/errors"
)

var userDuplicates = map[string]errors.Code{
	"users.name":        errors.CodeUserDuplicateName,
	"user_emails.email": errors.CodeUserDuplicateEmail,
}

type userQueries struct {
	sq *sql.Tx
}

const userSelectColumns = "id, name, realname, password_algo, password_hash, password_salt, created, updated"

func (q userQueries) Create(ctx context.Context, u domain.User) error {
	_, err := q.sq.ExecContext(ctx, `
INSERT INTO users (id, name, name_fold, realname, realname_fold, password_algo, password_hash, password_salt, created, updated)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID.String(), u.Name, fold(u.Name), u.RealName, fold(u.RealName),
		u.Password.Algorithm, u.Password.Hash, u.Password.Salt,
		toMicros(u.Created), toMicros(u.Updated),
	)
	if err != nil {
		return mapConstraint(err, userDuplicates)
	}
	if err := insertEmails(ctx, q.sq, "user_emails", "user_id", u.ID.String(), u.Emails); err != nil {
		return mapConstraint(err, userDuplicates)
	}
	return nil
}

func (q userQueries) Get(ctx context.Context, id uuid.UUID) (domain.User, error) {
	row := q.sq.QueryRowContext(ctx,
		"SELECT "+userSelectColumns+" FROM users WHERE id = ?", id.String())
	return q.scanUser(ctx, row)
}

func (q userQueries) GetByName(ctx context.Context, name string) (domain.User, error) {
	row := q.sq.QueryRowContext(ctx,
		"SELECT "+userSelectColumns+" FROM users WHERE name = ?", name)
	return q.scanUser(ctx, row)
}

func (q userQueries) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	row := q.sq.QueryRowContext(ctx, `
SELECT u.id, u.name, u.realname, u.password_algo, u.password_hash, u.password_salt, u.created, u.updated
FROM users u JOIN user_emails e ON e.user_id = u.id
WHERE e.email = ?`, email)
	u, err := q.scanUser(ctx, row)
	if errors.IsCode(err, errors.CodeUserNonexistent) {
		return domain.User{}, errors.New(errors.CodeEmailNonexistent, "no user has that email")
	}
	return u, err
}

func (q userQueries) Update(ctx context.Context, u domain.User) error {
	res, err := q.sq.ExecContext(ctx, `
UPDATE users
SET name = ?, name_fold = ?, realname = ?, realname_fold = ?,
    password_algo = ?, password_hash = ?, password_salt = ?, updated = ?
WHERE id = ?`,
		u.Name, fold(u.Name), u.RealName, fold(u.RealName),
		u.Password.Algorithm, u.Password.Hash, u.Password.Salt,
		toMicros(u.Updated), u.ID.String(),
	)
	if err != nil {
		return mapConstraint(err, userDuplicates)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if affected == 0 {
		return errors.New(errors.CodeUserNonexistent, "no such user")
	}
	if err := replaceEmails(ctx, q.sq, "user_emails", "user_id", u.ID.String(), u.Emails); err != nil {
		return mapConstraint(err, userDuplicates)
	}
	return nil
}

func (q userQueries) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := q.sq.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if affected == 0 {
		return errors.New(errors.CodeUserNonexistent, "no such user")
	}
	return nil
}

func (q userQueries) Count(ctx context.Context, p domain.SearchParameters) (int64, error) {
	var b searchBuilder
	b.timeRanges(p)
	b.filter(p, "name_fold", "realname_fold")

	var total int64
	row := q.sq.QueryRowContext(ctx, "SELECT COUNT(*) FROM users"+b.where(), b.args...)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return total, nil
}

func (q userQueries) Search(ctx context.Context, p domain.SearchParameters, boundary *domain.User, backward bool) ([]domain.User, error) {
	sortColumn, err := principalColumn(p.Ordering.Column)
	if err != nil {
		return nil, err
	}

	var b searchBuilder
	b.timeRanges(p)
	b.filter(p, "name_fold", "realname_fold")

	fetchAscending, after := fetchDirection(p.Ordering.Ascending, backward)
	if boundary != nil {
		b.keyset(sortColumn, userSortValue(p.Ordering.Column, *boundary), "id", boundary.ID.String(), after)
	}

	query := "SELECT " + userSelectColumns + " FROM users" + b.where() +
		orderLimit(sortColumn, "id", fetchAscending, p.Limit)
	rows, err := q.sq.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	for i := range users {
		emails, err := loadEmails(ctx, q.sq, "user_emails", "user_id", users[i].ID.String())
		if err != nil {
			return nil, err
		}
		users[i].Emails = emails
	}
	return users, nil
}

// userSortValue extracts the boundary value for the active sort column.
func userSortValue(c domain.Column, u domain.User) any {
	switch c {
	case domain.ColumnByName:
		return u.Name
	case domain.ColumnByRealName:
		return u.RealName
	case domain.ColumnByTimeCreated:
		return toMicros(u.Created)
	case domain.ColumnByTimeUpdated:
		return toMicros(u.Updated)
	default:
		return u.ID.String()
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserRow(row rowScanner) (domain.User, error) {
	var (
		u                sqlUser
		created, updated int64
	)
	err := row.Scan(&u.id, &u.name, &u.realName, &u.algo, &u.hash, &u.salt, &created, &updated)
	if stderrors.Is(err, sql.ErrNoRows) {
		return domain.User{}, errors.New(errors.CodeUserNonexistent, "no such user")
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("scan user: %w", err)
	}
	id, err := uuid.Parse(u.id)
	if err != nil {
		return domain.User{}, fmt.Errorf("parse user id: %w", err)
	}
	return domain.User{
		ID:       id,
		Name:     u.name,
		RealName: u.realName,
		Created:  fromMicros(created),
		Updated:  fromMicros(updated),
		Password: domain.Password{Algorithm: u.algo, Hash: u.hash, Salt: u.salt},
	}, nil
}

type sqlUser struct {
	id, name, realName, algo, hash, salt string
}

func (q userQueries) scanUser(ctx context.Context, row rowScanner) (domain.User, error) {
	u, err := scanUserRow(row)
	if err != nil {
		return domain.User{}, err
	}
	emails, err := loadEmails(ctx, q.sq, "user_emails", "user_id", u.ID.String())
	if err != nil {
		return domain.User{}, err
	}
	u.Emails = emails
	return u, nil
}
