package server

import (
	"context"
	"net"
	"net/http"

	"github.com/google/uuid"

	"github.com/silvermint/idserver/internal/domain"
	"github.com/silvermint/idserver/internal/errors"
	"github.com/silvermint/idserver/internal/protocol/cb1"
	"github.com/silvermint/idserver/internal/session"
)

// handleLogin authenticates a principal by name and password. Admins and
// users share one namespace-free login flow: the name is tried against
// admins first, then users.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	requestID := s.newID()
	ctx, span := s.tracer.Start(r.Context(), "idserver.login")
	defer span.End()

	// Logins are the low-frequency entry point, so each one also sweeps
	// sessions that expired without ever presenting their token again.
	s.searches.drop(s.sessions.Sweep()...)

	body, err := readBody(r)
	if err != nil {
		s.writeError(w, requestID, err)
		return
	}
	cmd, err := cb1.DecodeLogin(body)
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
	req := request{ID: requestID, Tx: tx}

	resp, sess, err := s.login(ctx, req, cmd, loginMetadata(r, cmd))
	if err != nil {
		s.writeError(w, requestID, err)
		return
	}
	if err := tx.Commit(); err != nil {
		s.writeError(w, requestID, errors.Wrap(errors.CodeIOError, "commit transaction", err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	s.writeMessage(w, http.StatusOK, resp)
}

// errBadCredentials is deliberately identical for unknown names and wrong
// passwords so login failures do not enumerate principals.
func errBadCredentials() error {
	return errors.New(errors.CodeAuthenticationError, "invalid credentials")
}

func (s *Server) login(ctx context.Context, req request, cmd cb1.CommandLogin, metadata map[string]string) (cb1.Message, session.Session, error) {
	admin, adminErr := req.Tx.Admins().GetByName(ctx, cmd.User)
	if adminErr == nil {
		return s.loginPrincipal(ctx, req, principalLogin{
			id:       admin.ID,
			password: admin.Password,
			kind:     session.KindAdmin,
			event:    domain.EventAdminLoggedIn,
			respond: func(id request, sess session.Session) cb1.Message {
				redacted := admin.WithRedactedPassword()
				return cb1.ResponseLogin{RequestID: id.ID, Admin: &redacted}
			},
		}, cmd.Password, metadata)
	}
	if !errors.IsCode(adminErr, errors.CodeAdminNonexistent) {
		return nil, session.Session{}, adminErr
	}

	user, userErr := req.Tx.Users().GetByName(ctx, cmd.User)
	if errors.IsCode(userErr, errors.CodeUserNonexistent) {
		return nil, session.Session{}, errBadCredentials()
	}
	if userErr != nil {
		return nil, session.Session{}, userErr
	}
	return s.loginPrincipal(ctx, req, principalLogin{
		id:       user.ID,
		password: user.Password,
		kind:     session.KindUser,
		event:    domain.EventUserLoggedIn,
		respond: func(id request, sess session.Session) cb1.Message {
			redacted := user.WithRedactedPassword()
			return cb1.ResponseLogin{RequestID: id.ID, User: &redacted}
		},
	}, cmd.Password, metadata)
}

type principalLogin struct {
	id       uuid.UUID
	password domain.Password
	kind     session.Kind
	event    string
	respond  func(req request, sess session.Session) cb1.Message
}

func (s *Server) loginPrincipal(ctx context.Context, req request, p principalLogin, password string, metadata map[string]string) (cb1.Message, session.Session, error) {
	ok, err := p.password.Check(password)
	if err != nil {
		return nil, session.Session{}, err
	}
	if !ok {
		return nil, session.Session{}, errBadCredentials()
	}

	ban, err := req.Tx.Bans().Get(ctx, p.id)
	if err != nil {
		return nil, session.Session{}, err
	}
	if ban != nil && ban.IsActive(s.now()) {
		return nil, session.Session{}, banError(*ban)
	}

	if err := s.recorder.Record(ctx, req.Tx.Audit(), p.id, p.event, metadata); err != nil {
		return nil, session.Session{}, err
	}

	sess, err := s.sessions.Create(p.kind, p.id)
	if err != nil {
		return nil, session.Session{}, err
	}
	return p.respond(req, sess), sess, nil
}

// loginMetadata records where a login came from alongside any metadata the
// client volunteered. The connection facts win on key collisions.
func loginMetadata(r *http.Request, cmd cb1.CommandLogin) map[string]string {
	metadata := make(map[string]string, len(cmd.Metadata)+2)
	for k, v := range cmd.Metadata {
		metadata[k] = v
	}
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	metadata["host"] = host
	if ua := r.UserAgent(); ua != "" {
		metadata["user_agent"] = ua
	}
	return metadata
}
