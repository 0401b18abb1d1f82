package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Admin is a privileged principal carrying a permission set.
type Admin struct {
	ID          uuid.UUID
	Name        string
	RealName    string
	Emails      []string
	Created     time.Time
	Updated     time.Time
	Password    Password
	Permissions PermissionSet
}

// CreateAdminInput describes the attributes needed to create an admin.
type CreateAdminInput struct {
	Name        string
	RealName    string
	Email       string
	Password    Password
	Permissions PermissionSet
}

// CreateAdmin builds a new admin with a generated ID and timestamps.
func CreateAdmin(input CreateAdminInput, now func() time.Time, newID func() uuid.UUID) (Admin, error) {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = uuid.New
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Admin{}, ErrEmptyName
	}
	email := strings.TrimSpace(input.Email)
	if email == "" {
		return Admin{}, ErrNoEmails
	}

	createdAt := now().UTC().Truncate(time.Microsecond)
	return Admin{
		ID:          newID(),
		Name:        name,
		RealName:    strings.TrimSpace(input.RealName),
		Emails:      []string{email},
		Created:     createdAt,
		Updated:     createdAt,
		Password:    input.Password,
		Permissions: input.Permissions,
	}, nil
}

// WithRedactedPassword returns a copy safe for transmission.
func (a Admin) WithRedactedPassword() Admin {
	a.Password = a.Password.Redact()
	return a
}

// AsUser projects the admin onto the shared principal fields. Used where
// bans and audit events treat both principal classes uniformly.
func (a Admin) AsUser() User {
	return User{
		ID:       a.ID,
		Name:     a.Name,
		RealName: a.RealName,
		Emails:   a.Emails,
		Created:  a.Created,
		Updated:  a.Updated,
		Password: a.Password,
	}
}
