package cb1

import (
	"time"

	"github.com/google/uuid"

	"github.com/silvermint/idserver/internal/domain"
	"github.com/silvermint/idserver/internal/errors"
)

// Message is one protocol v1 message. The set of implementations is closed.
type Message interface {
	message()
}

// Command messages.

// CommandLogin authenticates a principal. It is only accepted at the login
// endpoint, never at the generic command endpoint.
type CommandLogin struct {
	User     string
	Password string
	Metadata map[string]string
}

// CommandUserSelf returns the calling user's own record.
type CommandUserSelf struct{}

// CommandUserCreate creates a user. Requires USER_WRITE.
type CommandUserCreate struct {
	Name     string
	RealName string
	Email    string
	Password string
}

// CommandUserGet fetches a user by id. Requires USER_READ.
type CommandUserGet struct {
	ID uuid.UUID
}

// CommandUserGetByEmail fetches a user by email. Requires USER_READ.
type CommandUserGetByEmail struct {
	Email string
}

// CommandUserUpdate updates user attributes. Absent fields keep their
// current values. Requires USER_WRITE.
type CommandUserUpdate struct {
	ID       uuid.UUID
	Name     *string
	RealName *string
	Password *string
}

// CommandUserEmailAdd appends an email address. Requires USER_WRITE.
type CommandUserEmailAdd struct {
	ID    uuid.UUID
	Email string
}

// CommandUserEmailRemove removes an email address. Removing the last one
// fails. Requires USER_WRITE.
type CommandUserEmailRemove struct {
	ID    uuid.UUID
	Email string
}

// CommandUserDelete removes a user permanently. Requires USER_DELETE.
type CommandUserDelete struct {
	ID uuid.UUID
}

// CommandUserSearchBegin opens a user search cursor. Requires USER_READ.
type CommandUserSearchBegin struct {
	Parameters domain.SearchParameters
}

// CommandUserSearchNext advances the user search cursor.
type CommandUserSearchNext struct{}

// CommandUserSearchPrevious rewinds the user search cursor.
type CommandUserSearchPrevious struct{}

// CommandUserBanCreate bans a user, replacing any existing ban. Requires
// USER_BAN.
type CommandUserBanCreate struct {
	ID      uuid.UUID
	Reason  string
	Expires *time.Time
}

// CommandUserBanDelete lifts a user ban. Lifting an absent ban succeeds.
// Requires USER_BAN.
type CommandUserBanDelete struct {
	ID uuid.UUID
}

// CommandUserBanGet fetches the active ban for a user, if any. Requires
// USER_BAN.
type CommandUserBanGet struct {
	ID uuid.UUID
}

// CommandAdminSelf returns the calling admin's own record.
type CommandAdminSelf struct{}

// CommandAdminCreate creates an admin. The granted permissions must be a
// subset of the creator's closure. Requires ADMIN_WRITE.
type CommandAdminCreate struct {
	Name        string
	RealName    string
	Email       string
	Password    string
	Permissions domain.PermissionSet
}

// CommandAdminGet fetches an admin by id. Requires ADMIN_READ.
type CommandAdminGet struct {
	ID uuid.UUID
}

// CommandAdminSearchBegin opens an admin search cursor. Requires ADMIN_READ.
type CommandAdminSearchBegin struct {
	Parameters domain.SearchParameters
}

// CommandAdminSearchNext advances the admin search cursor.
type CommandAdminSearchNext struct{}

// CommandAdminSearchPrevious rewinds the admin search cursor.
type CommandAdminSearchPrevious struct{}

// CommandAdminPermissionGrant grants one permission. Requires ADMIN_WRITE.
type CommandAdminPermissionGrant struct {
	ID         uuid.UUID
	Permission domain.Permission
}

// CommandAdminPermissionRevoke revokes one permission. Requires ADMIN_WRITE.
type CommandAdminPermissionRevoke struct {
	ID         uuid.UUID
	Permission domain.Permission
}

// CommandAdminBanCreate bans an admin. Requires ADMIN_BAN.
type CommandAdminBanCreate struct {
	ID      uuid.UUID
	Reason  string
	Expires *time.Time
}

// CommandAdminBanDelete lifts an admin ban. Requires ADMIN_BAN.
type CommandAdminBanDelete struct {
	ID uuid.UUID
}

// CommandAuditSearchBegin opens an audit search cursor. Requires AUDIT_READ.
type CommandAuditSearchBegin struct {
	Parameters domain.SearchParameters
}

// CommandAuditSearchNext advances the audit search cursor.
type CommandAuditSearchNext struct{}

// CommandAuditSearchPrevious rewinds the audit search cursor.
type CommandAuditSearchPrevious struct{}

// Response messages. Every response carries the server-assigned request id
// for audit and error correlation.

// ResponseLogin confirms a login. Exactly one of Admin or User is set,
// matching the principal class that authenticated.
type ResponseLogin struct {
	RequestID uuid.UUID
	Admin     *domain.Admin
	User      *domain.User
}

// ResponseOK confirms a command with no payload.
type ResponseOK struct {
	RequestID uuid.UUID
}

// ResponseUser carries a single user with a redacted password.
type ResponseUser struct {
	RequestID uuid.UUID
	User      domain.User
}

// ResponseAdmin carries a single admin with a redacted password.
type ResponseAdmin struct {
	RequestID uuid.UUID
	Admin     domain.Admin
}

// ResponseUserPage carries one page of a user search.
type ResponseUserPage struct {
	RequestID uuid.UUID
	Page      domain.Page[domain.User]
}

// ResponseAdminPage carries one page of an admin search.
type ResponseAdminPage struct {
	RequestID uuid.UUID
	Page      domain.Page[domain.Admin]
}

// ResponseAuditPage carries one page of an audit search.
type ResponseAuditPage struct {
	RequestID uuid.UUID
	Page      domain.Page[domain.AuditEvent]
}

// ResponseBan carries the active ban for a principal, absent when none.
type ResponseBan struct {
	RequestID uuid.UUID
	Ban       *domain.Ban
}

// ResponseError carries a classified failure.
type ResponseError struct {
	RequestID   uuid.UUID
	Code        errors.Code
	Message     string
	Attributes  map[string]string
	Remediation *string
	Blame       errors.Blame
}

func (CommandLogin) message()                 {}
func (CommandUserSelf) message()              {}
func (CommandUserCreate) message()            {}
func (CommandUserGet) message()               {}
func (CommandUserGetByEmail) message()        {}
func (CommandUserUpdate) message()            {}
func (CommandUserEmailAdd) message()          {}
func (CommandUserEmailRemove) message()       {}
func (CommandUserDelete) message()            {}
func (CommandUserSearchBegin) message()       {}
func (CommandUserSearchNext) message()        {}
func (CommandUserSearchPrevious) message()    {}
func (CommandUserBanCreate) message()         {}
func (CommandUserBanDelete) message()         {}
func (CommandUserBanGet) message()            {}
func (CommandAdminSelf) message()             {}
func (CommandAdminCreate) message()           {}
func (CommandAdminGet) message()              {}
func (CommandAdminSearchBegin) message()      {}
func (CommandAdminSearchNext) message()       {}
func (CommandAdminSearchPrevious) message()   {}
func (CommandAdminPermissionGrant) message()  {}
func (CommandAdminPermissionRevoke) message() {}
func (CommandAdminBanCreate) message()        {}
func (CommandAdminBanDelete) message()        {}
func (CommandAuditSearchBegin) message()      {}
func (CommandAuditSearchNext) message()       {}
func (CommandAuditSearchPrevious) message()   {}
func (ResponseLogin) message()                {}
func (ResponseOK) message()                   {}
func (ResponseUser) message()                 {}
func (ResponseAdmin) message()                {}
func (ResponseUserPage) message()             {}
func (ResponseAdminPage) message()            {}
func (ResponseAuditPage) message()            {}
func (ResponseBan) message()                  {}
func (ResponseError) message()                {}
