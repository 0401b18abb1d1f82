package domain

import "testing"

func TestPermissionSetImpliesClosure(t *testing.T) {
	s := NewPermissionSet(PermissionAdminWrite)

	if !s.Implies(PermissionAdminWrite) {
		t.Fatal("expected ADMIN_WRITE to satisfy itself")
	}
	if !s.Implies(PermissionAdminRead) {
		t.Fatal("expected ADMIN_WRITE to imply ADMIN_READ")
	}
	if s.Holds(PermissionAdminRead) {
		t.Fatal("ADMIN_READ must not appear as a direct grant")
	}

	// The closure is one-directional.
	r := NewPermissionSet(PermissionAdminRead)
	if r.Implies(PermissionAdminWrite) {
		t.Fatal("ADMIN_READ must not imply ADMIN_WRITE")
	}
}

func TestPermissionSetUserClosure(t *testing.T) {
	for _, p := range []Permission{PermissionUserWrite, PermissionUserBan} {
		s := NewPermissionSet(p)
		if !s.Implies(PermissionUserRead) {
			t.Fatalf("expected %s to imply USER_READ", p)
		}
	}
	if NewPermissionSet(PermissionUserDelete).Implies(PermissionUserRead) {
		t.Fatal("USER_DELETE must not imply USER_READ")
	}
}

func TestPermissionSetWithWithout(t *testing.T) {
	s := NewPermissionSet(PermissionAuditRead).With(PermissionUserBan)
	if !s.Holds(PermissionUserBan) || !s.Holds(PermissionAuditRead) {
		t.Fatalf("unexpected set %v", s.Slice())
	}

	s = s.Without(PermissionUserBan)
	if s.Holds(PermissionUserBan) {
		t.Fatal("expected USER_BAN revoked")
	}
	if !s.Holds(PermissionAuditRead) {
		t.Fatal("revoke must not disturb other grants")
	}
}

func TestPermissionSetSliceOrderIndependent(t *testing.T) {
	a := NewPermissionSet(PermissionAuditRead, PermissionUserRead, PermissionAdminBan)
	b := NewPermissionSet(PermissionAdminBan, PermissionAuditRead, PermissionUserRead)

	as, bs := a.Slice(), b.Slice()
	if len(as) != len(bs) {
		t.Fatalf("set sizes differ: %d vs %d", len(as), len(bs))
	}
	for i := range as {
		if as[i] != bs[i] {
			t.Fatalf("slice order differs at %d: %s vs %s", i, as[i], bs[i])
		}
	}
}

func TestPermissionSetIsSubsetOf(t *testing.T) {
	creator := NewPermissionSet(PermissionAdminWrite, PermissionUserWrite)

	// ADMIN_READ is satisfied through the creator's closure.
	granted := NewPermissionSet(PermissionAdminRead, PermissionUserWrite)
	if !granted.IsSubsetOf(creator) {
		t.Fatal("expected granted set to be a subset via implication")
	}

	escalated := NewPermissionSet(PermissionAuditRead)
	if escalated.IsSubsetOf(creator) {
		t.Fatal("AUDIT_READ must not be grantable by this creator")
	}
}

func TestParsePermission(t *testing.T) {
	p, err := ParsePermission("ADMIN_WRITE")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p != PermissionAdminWrite {
		t.Fatalf("parsed %v", p)
	}

	if _, err := ParsePermission("SUPERUSER"); err == nil {
		t.Fatal("expected unrecognized permission to fail")
	}
}
