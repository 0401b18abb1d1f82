package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrEmptyName indicates a missing principal short name.
	ErrEmptyName = errors.New("name is required")
	// ErrNoEmails indicates an empty email list; every principal keeps at
	// least one address.
	ErrNoEmails = errors.New("at least one email required")
	// ErrLastEmail indicates an attempt to remove a principal's only email.
	ErrLastEmail = errors.New("cannot remove the last email")
	// ErrEmailAbsent indicates the email is not among the principal's addresses.
	ErrEmailAbsent = errors.New("email not present")
	// ErrEmailPresent indicates the email is already among the principal's addresses.
	ErrEmailPresent = errors.New("email already present")
)

// User is an ordinary principal.
type User struct {
	ID       uuid.UUID
	Name     string
	RealName string
	Emails   []string
	Created  time.Time
	Updated  time.Time
	Password Password
}

// CreateUserInput describes the attributes needed to create a user.
type CreateUserInput struct {
	Name     string
	RealName string
	Email    string
	Password Password
}

// CreateUser builds a new user with a generated ID and timestamps.
func CreateUser(input CreateUserInput, now func() time.Time, newID func() uuid.UUID) (User, error) {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = uuid.New
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return User{}, ErrEmptyName
	}
	email := strings.TrimSpace(input.Email)
	if email == "" {
		return User{}, ErrNoEmails
	}

	createdAt := now().UTC().Truncate(time.Microsecond)
	return User{
		ID:       newID(),
		Name:     name,
		RealName: strings.TrimSpace(input.RealName),
		Emails:   []string{email},
		Created:  createdAt,
		Updated:  createdAt,
		Password: input.Password,
	}, nil
}

// WithRedactedPassword returns a copy safe for transmission.
func (u User) WithRedactedPassword() User {
	u.Password = u.Password.Redact()
	return u
}

// EmailAdd returns a copy with the email appended, preserving order.
func (u User) EmailAdd(email string) (User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return User{}, ErrNoEmails
	}
	for _, e := range u.Emails {
		if strings.EqualFold(e, email) {
			return User{}, ErrEmailPresent
		}
	}
	emails := make([]string, 0, len(u.Emails)+1)
	emails = append(emails, u.Emails...)
	emails = append(emails, email)
	u.Emails = emails
	return u, nil
}

// EmailRemove returns a copy with the email removed. Removing the only
// remaining address fails, keeping the at-least-one invariant.
func (u User) EmailRemove(email string) (User, error) {
	idx := -1
	for i, e := range u.Emails {
		if strings.EqualFold(e, strings.TrimSpace(email)) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return User{}, ErrEmailAbsent
	}
	if len(u.Emails) == 1 {
		return User{}, ErrLastEmail
	}
	emails := make([]string, 0, len(u.Emails)-1)
	emails = append(emails, u.Emails[:idx]...)
	emails = append(emails, u.Emails[idx+1:]...)
	u.Emails = emails
	return u, nil
}

// ValidateEmails checks the at-least-one-email invariant.
func ValidateEmails(emails []string) error {
	if len(emails) == 0 {
		return ErrNoEmails
	}
	for _, e := range emails {
		if strings.TrimSpace(e) == "" {
			return fmt.Errorf("blank email address")
		}
	}
	return nil
}
