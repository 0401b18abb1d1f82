package server

import (
	"context"

	"github.com/silvermint/idserver/internal/domain"
	"github.com/silvermint/idserver/internal/errors"
	"github.com/silvermint/idserver/internal/pagination"
	"github.com/silvermint/idserver/internal/protocol/cb1"
)

func (s *Server) adminSelf(ctx context.Context, req request) (cb1.Message, error) {
	admin, err := s.requireAdmin(ctx, req)
	if err != nil {
		return nil, err
	}
	return cb1.ResponseAdmin{RequestID: req.ID, Admin: admin.WithRedactedPassword()}, nil
}

func (s *Server) adminCreate(ctx context.Context, req request, cmd cb1.CommandAdminCreate) (cb1.Message, error) {
	actor, err := s.authorize(ctx, req, domain.PermissionAdminWrite)
	if err != nil {
		return nil, err
	}
	// Nobody hands out capabilities they do not hold themselves.
	if !cmd.Permissions.IsSubsetOf(actor.Permissions) {
		return nil, errors.New(errors.CodeSecurityPolicyDenied, "cannot grant permissions beyond your own")
	}

	password, err := domain.NewPassword(cmd.Password)
	if err != nil {
		return nil, err
	}
	admin, err := domain.CreateAdmin(domain.CreateAdminInput{
		Name:        cmd.Name,
		RealName:    cmd.RealName,
		Email:       cmd.Email,
		Password:    password,
		Permissions: cmd.Permissions,
	}, s.now, s.newID)
	if err != nil {
		return nil, errors.Wrap(errors.CodeProtocolError, err.Error(), err)
	}
	if err := req.Tx.Admins().Create(ctx, admin); err != nil {
		return nil, err
	}

	err = s.recorder.Record(ctx, req.Tx.Audit(), actor.ID, domain.EventAdminCreated,
		map[string]string{"admin": admin.ID.String(), "name": admin.Name})
	if err != nil {
		return nil, err
	}
	return cb1.ResponseAdmin{RequestID: req.ID, Admin: admin.WithRedactedPassword()}, nil
}

func (s *Server) adminGet(ctx context.Context, req request, cmd cb1.CommandAdminGet) (cb1.Message, error) {
	if _, err := s.authorize(ctx, req, domain.PermissionAdminRead); err != nil {
		return nil, err
	}
	admin, err := req.Tx.Admins().Get(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}
	return cb1.ResponseAdmin{RequestID: req.ID, Admin: admin.WithRedactedPassword()}, nil
}

func (s *Server) adminSearchBegin(ctx context.Context, req request, cmd cb1.CommandAdminSearchBegin) (cb1.Message, error) {
	if _, err := s.authorize(ctx, req, domain.PermissionAdminRead); err != nil {
		return nil, err
	}
	params, err := cmd.Parameters.Normalize()
	if err != nil {
		return nil, errors.Wrap(errors.CodeProtocolError, err.Error(), err)
	}

	cursor := pagination.NewCursor[domain.Admin](adminSource{}, params)
	page, err := cursor.Current(ctx)
	if err != nil {
		return nil, err
	}
	s.searches.forSession(req.Session.Token).admins = cursor
	return adminPageResponse(req, page), nil
}

func (s *Server) adminSearchNext(ctx context.Context, req request) (cb1.Message, error) {
	if _, err := s.authorize(ctx, req, domain.PermissionAdminRead); err != nil {
		return nil, err
	}
	cursor := s.searches.forSession(req.Session.Token).admins
	if cursor == nil {
		return nil, errors.New(errors.CodeProtocolError, "no open admin search")
	}
	page, err := cursor.Next(ctx)
	if err != nil {
		return nil, err
	}
	return adminPageResponse(req, page), nil
}

func (s *Server) adminSearchPrevious(ctx context.Context, req request) (cb1.Message, error) {
	if _, err := s.authorize(ctx, req, domain.PermissionAdminRead); err != nil {
		return nil, err
	}
	cursor := s.searches.forSession(req.Session.Token).admins
	if cursor == nil {
		return nil, errors.New(errors.CodeProtocolError, "no open admin search")
	}
	page, err := cursor.Previous(ctx)
	if err != nil {
		return nil, err
	}
	return adminPageResponse(req, page), nil
}

func adminPageResponse(req request, page domain.Page[domain.Admin]) cb1.Message {
	for i := range page.Items {
		page.Items[i] = page.Items[i].WithRedactedPassword()
	}
	return cb1.ResponseAdminPage{RequestID: req.ID, Page: page}
}

func (s *Server) adminPermissionGrant(ctx context.Context, req request, cmd cb1.CommandAdminPermissionGrant) (cb1.Message, error) {
	actor, err := s.authorize(ctx, req, domain.PermissionAdminWrite)
	if err != nil {
		return nil, err
	}
	if !actor.Permissions.Implies(cmd.Permission) {
		return nil, errors.New(errors.CodeSecurityPolicyDenied, "cannot grant a permission you do not hold").
			WithAttributes(map[string]string{"permission": cmd.Permission.String()})
	}

	target, err := req.Tx.Admins().Get(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}
	target.Permissions = target.Permissions.With(cmd.Permission)
	target.Updated = s.now().UTC()
	if err := req.Tx.Admins().Update(ctx, target); err != nil {
		return nil, err
	}

	err = s.recorder.Record(ctx, req.Tx.Audit(), actor.ID, domain.EventAdminPermissionGranted,
		map[string]string{"admin": target.ID.String(), "permission": cmd.Permission.String()})
	if err != nil {
		return nil, err
	}
	return cb1.ResponseAdmin{RequestID: req.ID, Admin: target.WithRedactedPassword()}, nil
}

func (s *Server) adminPermissionRevoke(ctx context.Context, req request, cmd cb1.CommandAdminPermissionRevoke) (cb1.Message, error) {
	actor, err := s.authorize(ctx, req, domain.PermissionAdminWrite)
	if err != nil {
		return nil, err
	}

	target, err := req.Tx.Admins().Get(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}
	target.Permissions = target.Permissions.Without(cmd.Permission)
	target.Updated = s.now().UTC()
	if err := req.Tx.Admins().Update(ctx, target); err != nil {
		return nil, err
	}

	err = s.recorder.Record(ctx, req.Tx.Audit(), actor.ID, domain.EventAdminPermissionRevoked,
		map[string]string{"admin": target.ID.String(), "permission": cmd.Permission.String()})
	if err != nil {
		return nil, err
	}
	return cb1.ResponseAdmin{RequestID: req.ID, Admin: target.WithRedactedPassword()}, nil
}

func (s *Server) adminBanCreate(ctx context.Context, req request, cmd cb1.CommandAdminBanCreate) (cb1.Message, error) {
	actor, err := s.authorize(ctx, req, domain.PermissionAdminBan)
	if err != nil {
		return nil, err
	}

	if _, err := req.Tx.Admins().Get(ctx, cmd.ID); err != nil {
		return nil, err
	}
	ban := domain.Ban{PrincipalID: cmd.ID, Reason: cmd.Reason, Expires: cmd.Expires}
	if err := req.Tx.Bans().Upsert(ctx, ban); err != nil {
		return nil, err
	}

	err = s.recorder.Record(ctx, req.Tx.Audit(), actor.ID, domain.EventAdminBanned,
		map[string]string{"admin": cmd.ID.String(), "reason": cmd.Reason})
	if err != nil {
		return nil, err
	}
	return cb1.ResponseBan{RequestID: req.ID, Ban: &ban}, nil
}

func (s *Server) adminBanDelete(ctx context.Context, req request, cmd cb1.CommandAdminBanDelete) (cb1.Message, error) {
	actor, err := s.authorize(ctx, req, domain.PermissionAdminBan)
	if err != nil {
		return nil, err
	}

	existed, err := req.Tx.Bans().Delete(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}
	if existed {
		err = s.recorder.Record(ctx, req.Tx.Audit(), actor.ID, domain.EventAdminBanRemoved,
			map[string]string{"admin": cmd.ID.String()})
		if err != nil {
			return nil, err
		}
	}
	return cb1.ResponseOK{RequestID: req.ID}, nil
}
