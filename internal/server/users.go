package server

import (
	"context"

	"github.com/silvermint/idserver/internal/domain"
	"github.com/silvermint/idserver/internal/errors"
	"github.com/silvermint/idserver/internal/pagination"
	"github.com/silvermint/idserver/internal/protocol/cb1"
	"github.com/silvermint/idserver/internal/session"
)

func (s *Server) userSelf(ctx context.Context, req request) (cb1.Message, error) {
	if req.Session.Kind != session.KindUser {
		return nil, errors.New(errors.CodeSecurityPolicyDenied, "user session required")
	}
	u, err := req.Tx.Users().Get(ctx, req.Session.PrincipalID)
	if errors.IsCode(err, errors.CodeUserNonexistent) {
		s.sessions.Delete(req.Session.Token)
		s.searches.drop(req.Session.Token)
		return nil, errors.New(errors.CodeAuthenticationError, "session principal no longer exists").
			WithRemediation("log in again")
	}
	if err != nil {
		return nil, err
	}
	return cb1.ResponseUser{RequestID: req.ID, User: u.WithRedactedPassword()}, nil
}

func (s *Server) userCreate(ctx context.Context, req request, cmd cb1.CommandUserCreate) (cb1.Message, error) {
	actor, err := s.authorize(ctx, req, domain.PermissionUserWrite)
	if err != nil {
		return nil, err
	}

	password, err := domain.NewPassword(cmd.Password)
	if err != nil {
		return nil, err
	}
	u, err := domain.CreateUser(domain.CreateUserInput{
		Name:     cmd.Name,
		RealName: cmd.RealName,
		Email:    cmd.Email,
		Password: password,
	}, s.now, s.newID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeProtocolError, err.Error(), err)
	}
	if err := req.Tx.Users().Create(ctx, u); err != nil {
		return nil, err
	}

	err = s.recorder.Record(ctx, req.Tx.Audit(), actor.ID, domain.EventUserCreated,
		map[string]string{"user": u.ID.String(), "name": u.Name})
	if err != nil {
		return nil, err
	}
	return cb1.ResponseUser{RequestID: req.ID, User: u.WithRedactedPassword()}, nil
}

func (s *Server) userGet(ctx context.Context, req request, cmd cb1.CommandUserGet) (cb1.Message, error) {
	if _, err := s.authorize(ctx, req, domain.PermissionUserRead); err != nil {
		return nil, err
	}
	u, err := req.Tx.Users().Get(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}
	return cb1.ResponseUser{RequestID: req.ID, User: u.WithRedactedPassword()}, nil
}

func (s *Server) userGetByEmail(ctx context.Context, req request, cmd cb1.CommandUserGetByEmail) (cb1.Message, error) {
	if _, err := s.authorize(ctx, req, domain.PermissionUserRead); err != nil {
		return nil, err
	}
	u, err := req.Tx.Users().GetByEmail(ctx, cmd.Email)
	if err != nil {
		return nil, err
	}
	return cb1.ResponseUser{RequestID: req.ID, User: u.WithRedactedPassword()}, nil
}

func (s *Server) userUpdate(ctx context.Context, req request, cmd cb1.CommandUserUpdate) (cb1.Message, error) {
	actor, err := s.authorize(ctx, req, domain.PermissionUserWrite)
	if err != nil {
		return nil, err
	}

	u, err := req.Tx.Users().Get(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}

	changed := map[string]string{"user": u.ID.String()}
	if cmd.Name != nil {
		if *cmd.Name == "" {
			return nil, errors.New(errors.CodeProtocolError, domain.ErrEmptyName.Error())
		}
		u.Name = *cmd.Name
		changed["name"] = *cmd.Name
	}
	if cmd.RealName != nil {
		u.RealName = *cmd.RealName
		changed["realname"] = *cmd.RealName
	}
	if cmd.Password != nil {
		password, err := domain.NewPassword(*cmd.Password)
		if err != nil {
			return nil, err
		}
		u.Password = password
		changed["password"] = "changed"
	}
	u.Updated = s.now().UTC()

	if err := req.Tx.Users().Update(ctx, u); err != nil {
		return nil, err
	}
	if err := s.recorder.Record(ctx, req.Tx.Audit(), actor.ID, domain.EventUserUpdated, changed); err != nil {
		return nil, err
	}
	return cb1.ResponseUser{RequestID: req.ID, User: u.WithRedactedPassword()}, nil
}

func (s *Server) userEmailAdd(ctx context.Context, req request, cmd cb1.CommandUserEmailAdd) (cb1.Message, error) {
	actor, err := s.authorize(ctx, req, domain.PermissionUserWrite)
	if err != nil {
		return nil, err
	}

	u, err := req.Tx.Users().Get(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}
	updated, err := u.EmailAdd(cmd.Email)
	if err == domain.ErrEmailPresent {
		return nil, errors.New(errors.CodeUserDuplicateEmail, err.Error())
	}
	if err != nil {
		return nil, errors.Wrap(errors.CodeProtocolError, err.Error(), err)
	}
	updated.Updated = s.now().UTC()

	if err := req.Tx.Users().Update(ctx, updated); err != nil {
		return nil, err
	}
	err = s.recorder.Record(ctx, req.Tx.Audit(), actor.ID, domain.EventUserEmailAdded,
		map[string]string{"user": u.ID.String(), "email": cmd.Email})
	if err != nil {
		return nil, err
	}
	return cb1.ResponseUser{RequestID: req.ID, User: updated.WithRedactedPassword()}, nil
}

func (s *Server) userEmailRemove(ctx context.Context, req request, cmd cb1.CommandUserEmailRemove) (cb1.Message, error) {
	actor, err := s.authorize(ctx, req, domain.PermissionUserWrite)
	if err != nil {
		return nil, err
	}

	u, err := req.Tx.Users().Get(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}
	updated, err := u.EmailRemove(cmd.Email)
	switch err {
	case nil:
	case domain.ErrLastEmail:
		return nil, errors.New(errors.CodeEmailLast, err.Error())
	case domain.ErrEmailAbsent:
		return nil, errors.New(errors.CodeEmailNonexistent, err.Error())
	default:
		return nil, err
	}
	updated.Updated = s.now().UTC()

	if err := req.Tx.Users().Update(ctx, updated); err != nil {
		return nil, err
	}
	err = s.recorder.Record(ctx, req.Tx.Audit(), actor.ID, domain.EventUserEmailRemoved,
		map[string]string{"user": u.ID.String(), "email": cmd.Email})
	if err != nil {
		return nil, err
	}
	return cb1.ResponseUser{RequestID: req.ID, User: updated.WithRedactedPassword()}, nil
}

func (s *Server) userDelete(ctx context.Context, req request, cmd cb1.CommandUserDelete) (cb1.Message, error) {
	actor, err := s.authorize(ctx, req, domain.PermissionUserDelete)
	if err != nil {
		return nil, err
	}

	if err := req.Tx.Users().Delete(ctx, cmd.ID); err != nil {
		return nil, err
	}
	// A deleted user's ban row and live sessions go with it.
	if _, err := req.Tx.Bans().Delete(ctx, cmd.ID); err != nil {
		return nil, err
	}
	s.searches.drop(s.sessions.DeleteForPrincipal(cmd.ID)...)

	err = s.recorder.Record(ctx, req.Tx.Audit(), actor.ID, domain.EventUserDeleted,
		map[string]string{"user": cmd.ID.String()})
	if err != nil {
		return nil, err
	}
	return cb1.ResponseOK{RequestID: req.ID}, nil
}

func (s *Server) userSearchBegin(ctx context.Context, req request, cmd cb1.CommandUserSearchBegin) (cb1.Message, error) {
	if _, err := s.authorize(ctx, req, domain.PermissionUserRead); err != nil {
		return nil, err
	}
	params, err := cmd.Parameters.Normalize()
	if err != nil {
		return nil, errors.Wrap(errors.CodeProtocolError, err.Error(), err)
	}

	cursor := pagination.NewCursor[domain.User](userSource{}, params)
	page, err := cursor.Current(ctx)
	if err != nil {
		return nil, err
	}
	s.searches.forSession(req.Session.Token).users = cursor
	return userPageResponse(req, page), nil
}

func (s *Server) userSearchNext(ctx context.Context, req request) (cb1.Message, error) {
	if _, err := s.authorize(ctx, req, domain.PermissionUserRead); err != nil {
		return nil, err
	}
	cursor := s.searches.forSession(req.Session.Token).users
	if cursor == nil {
		return nil, errors.New(errors.CodeProtocolError, "no open user search")
	}
	page, err := cursor.Next(ctx)
	if err != nil {
		return nil, err
	}
	return userPageResponse(req, page), nil
}

func (s *Server) userSearchPrevious(ctx context.Context, req request) (cb1.Message, error) {
	if _, err := s.authorize(ctx, req, domain.PermissionUserRead); err != nil {
		return nil, err
	}
	cursor := s.searches.forSession(req.Session.Token).users
	if cursor == nil {
		return nil, errors.New(errors.CodeProtocolError, "no open user search")
	}
	page, err := cursor.Previous(ctx)
	if err != nil {
		return nil, err
	}
	return userPageResponse(req, page), nil
}

func userPageResponse(req request, page domain.Page[domain.User]) cb1.Message {
	for i := range page.Items {
		page.Items[i] = page.Items[i].WithRedactedPassword()
	}
	return cb1.ResponseUserPage{RequestID: req.ID, Page: page}
}

func (s *Server) userBanCreate(ctx context.Context, req request, cmd cb1.CommandUserBanCreate) (cb1.Message, error) {
	actor, err := s.authorize(ctx, req, domain.PermissionUserBan)
	if err != nil {
		return nil, err
	}

	if _, err := req.Tx.Users().Get(ctx, cmd.ID); err != nil {
		return nil, err
	}
	ban := domain.Ban{PrincipalID: cmd.ID, Reason: cmd.Reason, Expires: cmd.Expires}
	if err := req.Tx.Bans().Upsert(ctx, ban); err != nil {
		return nil, err
	}

	err = s.recorder.Record(ctx, req.Tx.Audit(), actor.ID, domain.EventUserBanned,
		map[string]string{"user": cmd.ID.String(), "reason": cmd.Reason})
	if err != nil {
		return nil, err
	}
	return cb1.ResponseBan{RequestID: req.ID, Ban: &ban}, nil
}

func (s *Server) userBanDelete(ctx context.Context, req request, cmd cb1.CommandUserBanDelete) (cb1.Message, error) {
	actor, err := s.authorize(ctx, req, domain.PermissionUserBan)
	if err != nil {
		return nil, err
	}

	existed, err := req.Tx.Bans().Delete(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}
	// Lifting an absent ban succeeds without leaving an audit trace.
	if existed {
		err = s.recorder.Record(ctx, req.Tx.Audit(), actor.ID, domain.EventUserBanRemoved,
			map[string]string{"user": cmd.ID.String()})
		if err != nil {
			return nil, err
		}
	}
	return cb1.ResponseOK{RequestID: req.ID}, nil
}

func (s *Server) userBanGet(ctx context.Context, req request, cmd cb1.CommandUserBanGet) (cb1.Message, error) {
	if _, err := s.authorize(ctx, req, domain.PermissionUserBan); err != nil {
		return nil, err
	}

	if _, err := req.Tx.Users().Get(ctx, cmd.ID); err != nil {
		return nil, err
	}
	ban, err := req.Tx.Bans().Get(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}
	if ban != nil && !ban.IsActive(s.now()) {
		ban = nil
	}
	return cb1.ResponseBan{RequestID: req.ID, Ban: ban}, nil
}
