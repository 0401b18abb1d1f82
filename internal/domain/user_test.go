package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCreateUser(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	id := uuid.MustParse("6e9a9d1c-6a64-4d94-bb46-0f53ce0c6a09")

	u, err := CreateUser(CreateUserInput{
		Name:     " someone ",
		RealName: "Someone R. Real",
		Email:    "someone@example.com",
		Password: Password{Algorithm: AlgorithmPlain, Hash: "x"},
	}, fixedClock(at), func() uuid.UUID { return id })
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	if u.ID != id {
		t.Fatalf("id = %s", u.ID)
	}
	if u.Name != "someone" {
		t.Fatalf("name not trimmed: %q", u.Name)
	}
	if len(u.Emails) != 1 || u.Emails[0] != "someone@example.com" {
		t.Fatalf("emails = %v", u.Emails)
	}
	if !u.Created.Equal(at) || !u.Updated.Equal(at) {
		t.Fatalf("timestamps = %v / %v", u.Created, u.Updated)
	}
}

func TestCreateUserRejectsMissingFields(t *testing.T) {
	if _, err := CreateUser(CreateUserInput{Email: "a@b.c"}, nil, nil); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("err = %v", err)
	}
	if _, err := CreateUser(CreateUserInput{Name: "x"}, nil, nil); !errors.Is(err, ErrNoEmails) {
		t.Fatalf("err = %v", err)
	}
}

func TestUserEmailAddRemove(t *testing.T) {
	u := User{Emails: []string{"first@example.com"}}

	u2, err := u.EmailAdd("second@example.com")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(u2.Emails) != 2 || u2.Emails[1] != "second@example.com" {
		t.Fatalf("emails = %v", u2.Emails)
	}
	if len(u.Emails) != 1 {
		t.Fatal("EmailAdd must not mutate the receiver")
	}

	if _, err := u2.EmailAdd("SECOND@example.com"); !errors.Is(err, ErrEmailPresent) {
		t.Fatalf("duplicate add err = %v", err)
	}

	u3, err := u2.EmailRemove("first@example.com")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(u3.Emails) != 1 || u3.Emails[0] != "second@example.com" {
		t.Fatalf("emails = %v", u3.Emails)
	}

	if _, err := u3.EmailRemove("second@example.com"); !errors.Is(err, ErrLastEmail) {
		t.Fatalf("last removal err = %v", err)
	}
	if _, err := u3.EmailRemove("absent@example.com"); !errors.Is(err, ErrEmailAbsent) {
		t.Fatalf("absent removal err = %v", err)
	}
}

func TestPasswordPlainCheckAndRedact(t *testing.T) {
	p := Password{Algorithm: AlgorithmPlain, Hash: "secret", Salt: "s"}

	ok, err := p.Check("secret")
	if err != nil || !ok {
		t.Fatalf("check = %v, %v", ok, err)
	}
	ok, err = p.Check("wrong")
	if err != nil || ok {
		t.Fatalf("check wrong = %v, %v", ok, err)
	}

	r := p.Redact()
	if r.Hash != "" || r.Salt != "" {
		t.Fatal("redact must blank hash and salt")
	}
	if r.Algorithm != AlgorithmPlain {
		t.Fatal("redact must keep the algorithm")
	}
}

func TestPasswordBcryptRoundTrip(t *testing.T) {
	p, err := NewPassword("correct horse")
	if err != nil {
		t.Fatalf("new password: %v", err)
	}
	if p.Algorithm != AlgorithmBcrypt {
		t.Fatalf("algorithm = %q", p.Algorithm)
	}

	ok, err := p.Check("correct horse")
	if err != nil || !ok {
		t.Fatalf("check = %v, %v", ok, err)
	}
	ok, err = p.Check("incorrect horse")
	if err != nil || ok {
		t.Fatalf("check wrong = %v, %v", ok, err)
	}
}

func TestPasswordUnknownAlgorithm(t *testing.T) {
	if _, err := (Password{Algorithm: "SHA0"}).Check("x"); err == nil {
		t.Fatal("expected unknown algorithm to fail")
	}
}

func TestBanIsActive(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if !(Ban{Reason: "spam"}).IsActive(now) {
		t.Fatal("indefinite ban must be active")
	}

	later := now.Add(time.Hour)
	if !(Ban{Expires: &later}).IsActive(now) {
		t.Fatal("unexpired ban must be active")
	}
	earlier := now.Add(-time.Hour)
	if (Ban{Expires: &earlier}).IsActive(now) {
		t.Fatal("expired ban must be inactive")
	}
}

func TestSearchParametersNormalize(t *testing.T) {
	p := SearchParameters{
		Filter:   " SomeOne ",
		Ordering: Ordering{Column: ColumnByName, Ascending: true},
	}

	n, err := p.Normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if n.Filter != "someone" {
		t.Fatalf("filter = %q", n.Filter)
	}
	if n.Limit != defaultSearchLimit {
		t.Fatalf("limit = %d", n.Limit)
	}
	if n.Created.Upper.IsZero() || n.Updated.Upper.IsZero() {
		t.Fatal("time ranges must widen to any-time defaults")
	}
}

func TestSearchParametersRejectNUL(t *testing.T) {
	p := SearchParameters{
		Filter:   "bad\x00input",
		Ordering: Ordering{Column: ColumnByName, Ascending: true},
	}
	if _, err := p.Normalize(); !errors.Is(err, ErrFilterNUL) {
		t.Fatalf("err = %v", err)
	}
}

func TestSearchParametersRejectBadColumn(t *testing.T) {
	p := SearchParameters{Ordering: Ordering{Column: Column(42)}}
	if _, err := p.Normalize(); err == nil {
		t.Fatal("expected unrecognized column to fail")
	}
}

func TestSearchParametersClampLimit(t *testing.T) {
	p := SearchParameters{
		Ordering: Ordering{Column: ColumnByID, Ascending: true},
		Limit:    maxSearchLimit + 1,
	}
	n, err := p.Normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if n.Limit != maxSearchLimit {
		t.Fatalf("limit = %d", n.Limit)
	}
}
