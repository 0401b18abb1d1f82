// Package domain holds the identity model: users, admins, passwords,
// permissions, bans, and the value types shared by search and pagination.
//
// Domain constructors are pure. Time and identifier generation are injected
// so that callers control determinism in tests.
package domain
