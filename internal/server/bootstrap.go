package server

import (
	"context"
	"fmt"

	"github.com/silvermint/idserver/internal/domain"
)

// EnsureInitialAdmin creates a first admin with every permission when the
// store holds no admins at all, so a fresh database is administrable. It is
// idempotent: with any admin present it does nothing.
func (s *Server) EnsureInitialAdmin(ctx context.Context, name, email, password string) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("bootstrap: begin: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil {
			s.logger.Printf("bootstrap: rollback: %v", err)
		}
	}()

	params, err := domain.SearchParameters{
		Ordering: domain.Ordering{Column: domain.ColumnByID, Ascending: true},
	}.Normalize()
	if err != nil {
		return false, fmt.Errorf("bootstrap: %w", err)
	}
	total, err := tx.Admins().Count(ctx, params)
	if err != nil {
		return false, fmt.Errorf("bootstrap: count admins: %w", err)
	}
	if total > 0 {
		return false, nil
	}

	hashed, err := domain.NewPassword(password)
	if err != nil {
		return false, fmt.Errorf("bootstrap: %w", err)
	}
	admin, err := domain.CreateAdmin(domain.CreateAdminInput{
		Name:        name,
		RealName:    name,
		Email:       email,
		Password:    hashed,
		Permissions: domain.AllPermissions(),
	}, s.now, s.newID)
	if err != nil {
		return false, fmt.Errorf("bootstrap: %w", err)
	}
	if err := tx.Admins().Create(ctx, admin); err != nil {
		return false, fmt.Errorf("bootstrap: create admin: %w", err)
	}

	err = s.recorder.Record(ctx, tx.Audit(), admin.ID, domain.EventAdminBootstrapped,
		map[string]string{"admin": admin.ID.String(), "name": admin.Name})
	if err != nil {
		return false, fmt.Errorf("bootstrap: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("bootstrap: commit: %w", err)
	}
	s.logger.Printf("bootstrapped initial admin %q (%s)", admin.Name, admin.ID)
	return true, nil
}
