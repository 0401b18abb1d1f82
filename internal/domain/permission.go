package domain

import (
	"fmt"
	"sort"
)

// Permission is a single grantable admin capability.
type Permission int

const (
	// PermissionUnspecified represents an invalid permission value.
	PermissionUnspecified Permission = iota
	// PermissionUserRead allows reading user records.
	PermissionUserRead
	// PermissionUserWrite allows creating and updating user records.
	PermissionUserWrite
	// PermissionUserBan allows banning and unbanning users.
	PermissionUserBan
	// PermissionUserDelete allows deleting user records.
	PermissionUserDelete
	// PermissionAdminRead allows reading admin records.
	PermissionAdminRead
	// PermissionAdminWrite allows creating admins and changing their permissions.
	PermissionAdminWrite
	// PermissionAdminBan allows banning and unbanning admins.
	PermissionAdminBan
	// PermissionAuditRead allows searching the audit log.
	PermissionAuditRead
)

// permissionNames maps permissions to their stable wire/storage names.
var permissionNames = map[Permission]string{
	PermissionUserRead:   "USER_READ",
	PermissionUserWrite:  "USER_WRITE",
	PermissionUserBan:    "USER_BAN",
	PermissionUserDelete: "USER_DELETE",
	PermissionAdminRead:  "ADMIN_READ",
	PermissionAdminWrite: "ADMIN_WRITE",
	PermissionAdminBan:   "ADMIN_BAN",
	PermissionAuditRead:  "AUDIT_READ",
}

// implied lists the weaker permissions each permission subsumes.
// The closure is shallow: no implied permission implies further ones.
var implied = map[Permission][]Permission{
	PermissionUserWrite:  {PermissionUserRead},
	PermissionUserBan:    {PermissionUserRead},
	PermissionAdminWrite: {PermissionAdminRead},
	PermissionAdminBan:   {PermissionAdminRead},
}

// Permissions returns every valid permission in stable order.
func Permissions() []Permission {
	return []Permission{
		PermissionUserRead,
		PermissionUserWrite,
		PermissionUserBan,
		PermissionUserDelete,
		PermissionAdminRead,
		PermissionAdminWrite,
		PermissionAdminBan,
		PermissionAuditRead,
	}
}

// String returns the stable name of the permission.
func (p Permission) String() string {
	if name, ok := permissionNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Permission(%d)", int(p))
}

// ParsePermission resolves a stable permission name.
func ParsePermission(name string) (Permission, error) {
	for p, n := range permissionNames {
		if n == name {
			return p, nil
		}
	}
	return PermissionUnspecified, fmt.Errorf("unrecognized permission %q", name)
}

// PermissionSet is an immutable set of permissions. The zero value is empty.
type PermissionSet struct {
	bits uint64
}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	var s PermissionSet
	for _, p := range perms {
		s.bits |= 1 << uint(p)
	}
	return s
}

// AllPermissions returns the set containing every permission.
func AllPermissions() PermissionSet {
	return NewPermissionSet(Permissions()...)
}

// With returns a copy of the set with p granted.
func (s PermissionSet) With(p Permission) PermissionSet {
	s.bits |= 1 << uint(p)
	return s
}

// Without returns a copy of the set with p revoked. Implied grants derived
// from other held permissions are unaffected.
func (s PermissionSet) Without(p Permission) PermissionSet {
	s.bits &^= 1 << uint(p)
	return s
}

// Holds reports whether p was granted directly, without applying implication.
func (s PermissionSet) Holds(p Permission) bool {
	return s.bits&(1<<uint(p)) != 0
}

// Implies reports whether the set satisfies a check for p, applying the
// implied-permission closure (for example ADMIN_WRITE implies ADMIN_READ).
func (s PermissionSet) Implies(p Permission) bool {
	if s.Holds(p) {
		return true
	}
	for holder, weaker := range implied {
		if !s.Holds(holder) {
			continue
		}
		for _, w := range weaker {
			if w == p {
				return true
			}
		}
	}
	return false
}

// IsSubsetOf reports whether every directly held permission in s is implied
// by the other set.
func (s PermissionSet) IsSubsetOf(other PermissionSet) bool {
	for _, p := range s.Slice() {
		if !other.Implies(p) {
			return false
		}
	}
	return true
}

// IsEmpty reports whether no permission is held.
func (s PermissionSet) IsEmpty() bool {
	return s.bits == 0
}

// Slice returns the directly held permissions in stable sorted order.
func (s PermissionSet) Slice() []Permission {
	var out []Permission
	for _, p := range Permissions() {
		if s.Holds(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
