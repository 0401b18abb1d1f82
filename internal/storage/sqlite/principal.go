package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/silvermint/idserver/internal/errors"
)

// fold case-folds a value for the *_fold shadow columns so free-text
// filtering matches the folded filter produced by search normalization.
func fold(value string) string {
	return cases.Fold().String(value)
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// loadEmails returns a principal's emails in their stored order.
func loadEmails(ctx context.Context, q querier, table, keyColumn, id string) ([]string, error) {
	query := fmt.Sprintf("SELECT email FROM %s WHERE %s = ? ORDER BY position", table, keyColumn)
	rows, err := q.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("load emails: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

// insertEmails writes a principal's email list with explicit positions.
func insertEmails(ctx context.Context, q querier, table, keyColumn, id string, emails []string) error {
	query := fmt.Sprintf("INSERT INTO %s (%s, email, position) VALUES (?, ?, ?)", table, keyColumn)
	for position, email := range emails {
		if _, err := q.ExecContext(ctx, query, id, email, position); err != nil {
			return err
		}
	}
	return nil
}

// replaceEmails swaps out a principal's whole email list.
func replaceEmails(ctx context.Context, q querier, table, keyColumn, id string, emails []string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, keyColumn)
	if _, err := q.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("clear emails: %w", err)
	}
	return insertEmails(ctx, q, table, keyColumn, id, emails)
}

// mapConstraint classifies unique-constraint violations into the duplicate
// codes named by the conflicting column. Other errors pass through.
func mapConstraint(err error, duplicates map[string]errors.Code) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for column, code := range duplicates {
		if strings.Contains(msg, "UNIQUE constraint failed: "+column) {
			return errors.Wrap(code, "duplicate value", err)
		}
	}
	return err
}
