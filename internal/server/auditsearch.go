package server

import (
	"context"

	"github.com/silvermint/idserver/internal/domain"
	"github.com/silvermint/idserver/internal/errors"
	"github.com/silvermint/idserver/internal/pagination"
	"github.com/silvermint/idserver/internal/protocol/cb1"
)

func (s *Server) auditSearchBegin(ctx context.Context, req request, cmd cb1.CommandAuditSearchBegin) (cb1.Message, error) {
	if _, err := s.authorize(ctx, req, domain.PermissionAuditRead); err != nil {
		return nil, err
	}
	params, err := cmd.Parameters.Normalize()
	if err != nil {
		return nil, errors.Wrap(errors.CodeProtocolError, err.Error(), err)
	}

	cursor := pagination.NewCursor[domain.AuditEvent](auditSource{}, params)
	page, err := cursor.Current(ctx)
	if err != nil {
		return nil, err
	}
	s.searches.forSession(req.Session.Token).audits = cursor
	return cb1.ResponseAuditPage{RequestID: req.ID, Page: page}, nil
}

func (s *Server) auditSearchNext(ctx context.Context, req request) (cb1.Message, error) {
	if _, err := s.authorize(ctx, req, domain.PermissionAuditRead); err != nil {
		return nil, err
	}
	cursor := s.searches.forSession(req.Session.Token).audits
	if cursor == nil {
		return nil, errors.New(errors.CodeProtocolError, "no open audit search")
	}
	page, err := cursor.Next(ctx)
	if err != nil {
		return nil, err
	}
	return cb1.ResponseAuditPage{RequestID: req.ID, Page: page}, nil
}

func (s *Server) auditSearchPrevious(ctx context.Context, req request) (cb1.Message, error) {
	if _, err := s.authorize(ctx, req, domain.PermissionAuditRead); err != nil {
		return nil, err
	}
	cursor := s.searches.forSession(req.Session.Token).audits
	if cursor == nil {
		return nil, errors.New(errors.CodeProtocolError, "no open audit search")
	}
	page, err := cursor.Previous(ctx)
	if err != nil {
		return nil, err
	}
	return cb1.ResponseAuditPage{RequestID: req.ID, Page: page}, nil
}
