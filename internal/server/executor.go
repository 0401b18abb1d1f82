package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/silvermint/idserver/internal/domain"
	"github.com/silvermint/idserver/internal/errors"
	"github.com/silvermint/idserver/internal/protocol/cb1"
	"github.com/silvermint/idserver/internal/session"
)

// handleCommand runs one command through the executor pipeline: resolve the
// session, open the request transaction, dispatch, then commit. Nothing
// commits on a failed dispatch.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	requestID := s.newID()
	ctx, span := s.tracer.Start(r.Context(), "idserver.command")
	defer span.End()

	body, err := readBody(r)
	if err != nil {
		s.writeError(w, requestID, err)
		return
	}
	cmd, err := cb1.DecodeCommand(body)
	if err != nil {
		s.writeError(w, requestID, err)
		return
	}
	span.SetAttributes(attribute.String("silvermint.command", commandName(cmd)))

	sess, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, requestID, err)
		return
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.writeError(w, requestID, errors.Wrap(errors.CodeIOError, "open transaction", err))
		return
	}
	defer func() {
		if err := tx.Rollback(); err != nil {
			s.logger.Printf("request %s: rollback: %v", requestID, err)
		}
	}()

	ctx = withTx(ctx, tx)
	req := request{ID: requestID, Session: sess, Tx: tx}

	if err := s.checkSessionBan(ctx, req); err != nil {
		s.writeError(w, requestID, err)
		return
	}

	resp, err := s.dispatch(ctx, req, cmd)
	if err != nil {
		s.writeError(w, requestID, err)
		return
	}
	if err := tx.Commit(); err != nil {
		s.writeError(w, requestID, errors.Wrap(errors.CodeIOError, "commit transaction", err))
		return
	}
	s.writeMessage(w, http.StatusOK, resp)
}

// authenticate resolves the session cookie. Absent, unknown, and expired
// tokens all report the same way.
func (s *Server) authenticate(r *http.Request) (session.Session, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return session.Session{}, errors.New(errors.CodeAuthenticationError, "not authenticated").
			WithRemediation("log in first")
	}
	sess, ok := s.sessions.Find(cookie.Value)
	if !ok {
		s.searches.drop(cookie.Value)
		return session.Session{}, errors.New(errors.CodeAuthenticationError, "session expired or unknown").
			WithRemediation("log in again")
	}
	return sess, nil
}

// checkSessionBan enforces bans at session resolution, not only at login:
// a ban lands on the next command of every live session the principal holds.
func (s *Server) checkSessionBan(ctx context.Context, req request) error {
	ban, err := req.Tx.Bans().Get(ctx, req.Session.PrincipalID)
	if err != nil {
		return err
	}
	if ban == nil || !ban.IsActive(s.now()) {
		return nil
	}
	s.sessions.Delete(req.Session.Token)
	s.searches.drop(req.Session.Token)
	return banError(*ban)
}

func banError(ban domain.Ban) error {
	attrs := map[string]string{"reason": ban.Reason}
	if ban.Expires != nil {
		attrs["expires"] = ban.Expires.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return errors.New(errors.CodeBanned, "principal is banned").WithAttributes(attrs)
}

// dispatch routes one command to its handler. The message set is closed;
// a new command type must be added here to be reachable at all.
func (s *Server) dispatch(ctx context.Context, req request, cmd cb1.Message) (cb1.Message, error) {
	switch c := cmd.(type) {
	case cb1.CommandUserSelf:
		return s.userSelf(ctx, req)
	case cb1.CommandUserCreate:
		return s.userCreate(ctx, req, c)
	case cb1.CommandUserGet:
		return s.userGet(ctx, req, c)
	case cb1.CommandUserGetByEmail:
		return s.userGetByEmail(ctx, req, c)
	case cb1.CommandUserUpdate:
		return s.userUpdate(ctx, req, c)
	case cb1.CommandUserEmailAdd:
		return s.userEmailAdd(ctx, req, c)
	case cb1.CommandUserEmailRemove:
		return s.userEmailRemove(ctx, req, c)
	case cb1.CommandUserDelete:
		return s.userDelete(ctx, req, c)
	case cb1.CommandUserSearchBegin:
		return s.userSearchBegin(ctx, req, c)
	case cb1.CommandUserSearchNext:
		return s.userSearchNext(ctx, req)
	case cb1.CommandUserSearchPrevious:
		return s.userSearchPrevious(ctx, req)
	case cb1.CommandUserBanCreate:
		return s.userBanCreate(ctx, req, c)
	case cb1.CommandUserBanDelete:
		return s.userBanDelete(ctx, req, c)
	case cb1.CommandUserBanGet:
		return s.userBanGet(ctx, req, c)
	case cb1.CommandAdminSelf:
		return s.adminSelf(ctx, req)
	case cb1.CommandAdminCreate:
		return s.adminCreate(ctx, req, c)
	case cb1.CommandAdminGet:
		return s.adminGet(ctx, req, c)
	case cb1.CommandAdminSearchBegin:
		return s.adminSearchBegin(ctx, req, c)
	case cb1.CommandAdminSearchNext:
		return s.adminSearchNext(ctx, req)
	case cb1.CommandAdminSearchPrevious:
		return s.adminSearchPrevious(ctx, req)
	case cb1.CommandAdminPermissionGrant:
		return s.adminPermissionGrant(ctx, req, c)
	case cb1.CommandAdminPermissionRevoke:
		return s.adminPermissionRevoke(ctx, req, c)
	case cb1.CommandAdminBanCreate:
		return s.adminBanCreate(ctx, req, c)
	case cb1.CommandAdminBanDelete:
		return s.adminBanDelete(ctx, req, c)
	case cb1.CommandAuditSearchBegin:
		return s.auditSearchBegin(ctx, req, c)
	case cb1.CommandAuditSearchNext:
		return s.auditSearchNext(ctx, req)
	case cb1.CommandAuditSearchPrevious:
		return s.auditSearchPrevious(ctx, req)
	default:
		return nil, errors.New(errors.CodeProtocolError, fmt.Sprintf("unhandled command %s", commandName(cmd)))
	}
}

// requireAdmin resolves the calling admin with fresh permissions. Sessions
// never cache grants; a revocation lands on the very next command.
func (s *Server) requireAdmin(ctx context.Context, req request) (domain.Admin, error) {
	if req.Session.Kind != session.KindAdmin {
		return domain.Admin{}, errors.New(errors.CodeSecurityPolicyDenied, "admin session required")
	}
	admin, err := req.Tx.Admins().Get(ctx, req.Session.PrincipalID)
	if errors.IsCode(err, errors.CodeAdminNonexistent) {
		// The admin was deleted while this session lived.
		s.sessions.Delete(req.Session.Token)
		s.searches.drop(req.Session.Token)
		return domain.Admin{}, errors.New(errors.CodeAuthenticationError, "session principal no longer exists").
			WithRemediation("log in again")
	}
	if err != nil {
		return domain.Admin{}, err
	}
	return admin, nil
}

// authorize resolves the calling admin and checks the permission closure.
func (s *Server) authorize(ctx context.Context, req request, p domain.Permission) (domain.Admin, error) {
	admin, err := s.requireAdmin(ctx, req)
	if err != nil {
		return domain.Admin{}, err
	}
	if !admin.Permissions.Implies(p) {
		return domain.Admin{}, errors.New(errors.CodeSecurityPolicyDenied, "permission denied").
			WithAttributes(map[string]string{"required": p.String()})
	}
	return admin, nil
}

func commandName(m cb1.Message) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", m), "cb1.")
}
