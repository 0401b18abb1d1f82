// Package errors provides the shared failure taxonomy: machine-readable
// codes, HTTP status mapping, and client/server blame classification.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeProtocolError covers malformed or unexpected wire messages,
	// commands sent to the wrong endpoint, and encoding violations.
	CodeProtocolError Code = "PROTOCOL_ERROR"
	// CodeAuthenticationError covers missing, expired, or invalid sessions
	// and rejected credentials.
	CodeAuthenticationError Code = "AUTHENTICATION_ERROR"
	// CodeNotLoggedIn is raised client-side for commands issued while
	// disconnected.
	CodeNotLoggedIn Code = "NOT_LOGGED_IN"
	// CodeSecurityPolicyDenied covers authenticated callers lacking a
	// required permission.
	CodeSecurityPolicyDenied Code = "SECURITY_POLICY_DENIED"
	// CodeBanned covers principals with an active ban.
	CodeBanned Code = "BANNED"

	// Domain invariant violations surfaced from the store.
	CodeUserNonexistent     Code = "USER_NONEXISTENT"
	CodeUserDuplicateName   Code = "USER_DUPLICATE_NAME"
	CodeUserDuplicateEmail  Code = "USER_DUPLICATE_EMAIL"
	CodeAdminNonexistent    Code = "ADMIN_NONEXISTENT"
	CodeAdminDuplicateName  Code = "ADMIN_DUPLICATE_NAME"
	CodeAdminDuplicateEmail Code = "ADMIN_DUPLICATE_EMAIL"
	CodeEmailNonexistent    Code = "EMAIL_NONEXISTENT"
	CodeEmailLast           Code = "EMAIL_LAST"

	// CodeIOError covers transport or storage failures not otherwise
	// classified. Always server blame.
	CodeIOError Code = "IO_ERROR"
)

// httpStatuses maps codes to the HTTP status carried by error responses.
// Codes absent from the table report as 500.
var httpStatuses = map[Code]int{
	CodeProtocolError:        http.StatusBadRequest,
	CodeAuthenticationError:  http.StatusUnauthorized,
	CodeNotLoggedIn:          http.StatusUnauthorized,
	CodeSecurityPolicyDenied: http.StatusForbidden,
	CodeBanned:               http.StatusForbidden,
	CodeUserNonexistent:      http.StatusNotFound,
	CodeAdminNonexistent:     http.StatusNotFound,
	CodeEmailNonexistent:     http.StatusNotFound,
	CodeUserDuplicateName:    http.StatusConflict,
	CodeUserDuplicateEmail:   http.StatusConflict,
	CodeAdminDuplicateName:   http.StatusConflict,
	CodeAdminDuplicateEmail:  http.StatusConflict,
	CodeEmailLast:            http.StatusConflict,
	CodeIOError:              http.StatusInternalServerError,
}

// HTTPStatus returns the HTTP status for the code.
func (c Code) HTTPStatus() int {
	if status, ok := httpStatuses[c]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Blame classifies whose fault a failure is, driving status selection.
type Blame string

const (
	// BlameClient marks failures caused by the caller.
	BlameClient Blame = "CLIENT"
	// BlameServer marks internal failures.
	BlameServer Blame = "SERVER"
)

// BlameFor derives blame from an HTTP status: below 500 is the client's.
func BlameFor(httpStatus int) Blame {
	if httpStatus < http.StatusInternalServerError {
		return BlameClient
	}
	return BlameServer
}

// Blame returns the blame classification for the code.
func (c Code) Blame() Blame {
	return BlameFor(c.HTTPStatus())
}
