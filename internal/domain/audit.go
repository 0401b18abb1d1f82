package domain

import (
	"time"

	"github.com/google/uuid"
)

// Audit event types recorded for committed mutations.
const (
	EventUserLoggedIn           = "USER_LOGGED_IN"
	EventAdminLoggedIn          = "ADMIN_LOGGED_IN"
	EventUserCreated            = "USER_CREATED"
	EventUserUpdated            = "USER_UPDATED"
	EventUserDeleted            = "USER_DELETED"
	EventUserEmailAdded         = "USER_EMAIL_ADDED"
	EventUserEmailRemoved       = "USER_EMAIL_REMOVED"
	EventUserBanned             = "USER_BANNED"
	EventUserBanRemoved         = "USER_BAN_REMOVED"
	EventAdminCreated           = "ADMIN_CREATED"
	EventAdminBanned            = "ADMIN_BANNED"
	EventAdminBanRemoved        = "ADMIN_BAN_REMOVED"
	EventAdminPermissionGranted = "ADMIN_PERMISSION_GRANTED"
	EventAdminPermissionRevoked = "ADMIN_PERMISSION_REVOKED"
	EventAdminBootstrapped      = "ADMIN_BOOTSTRAPPED"
)

// AuditEvent is one immutable entry in the audit log. Events are appended
// inside the transaction that performs the mutation they describe.
type AuditEvent struct {
	// Seq is assigned by the store on append.
	Seq   int64
	Time  time.Time
	Actor uuid.UUID
	Type  string
	Data  map[string]string
}
