package cb1

import (
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/silvermint/idserver/internal/domain"
	"github.com/silvermint/idserver/internal/errors"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		IndefLength:       cbor.IndefLengthForbidden,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// envelope frames every message as [tag, body].
type envelope struct {
	_    struct{} `cbor:",toarray"`
	Tag  string
	Body cbor.RawMessage
}

// Wire bodies for commands without a dedicated shape.

type wireCommandLogin struct {
	User     string
	Password string
	Metadata map[string]string
}

type wireID struct {
	ID string
}

type wireCommandUserCreate struct {
	Name     string
	RealName string
	Email    string
	Password string
}

type wireEmail struct {
	Email string
}

type wireCommandUserUpdate struct {
	ID       string
	Name     []string
	RealName []string
	Password []string
}

type wireIDEmail struct {
	ID    string
	Email string
}

type wireSearchBegin struct {
	Parameters wireSearchParameters
}

type wireBanCreate struct {
	ID      string
	Reason  string
	Expires []wireTimestamp
}

type wireCommandAdminCreate struct {
	Name        string
	RealName    string
	Email       string
	Password    string
	Permissions []string
}

type wirePermissionChange struct {
	ID         string
	Permission string
}

// Wire bodies for responses.

type wireResponseLogin struct {
	RequestID string
	Admin     []wireAdmin
	User      []wireUser
}

type wireRequestID struct {
	RequestID string
}

type wireResponseUser struct {
	RequestID string
	User      wireUser
}

type wireResponseAdmin struct {
	RequestID string
	Admin     wireAdmin
}

type wireResponsePage[W any] struct {
	RequestID string
	Page      wirePage[W]
}

type wireResponseBan struct {
	RequestID string
	Ban       []wireBan
}

type wireResponseError struct {
	RequestID   string
	Code        string
	Message     string
	Attributes  map[string]string
	Remediation []string
	Blame       string
}

// Encode serializes a message. The type switch is exhaustive over the closed
// message set; an unlisted type is a programming error reported as
// PROTOCOL_ERROR.
func Encode(m Message) ([]byte, error) {
	var tag string
	var body any

	switch c := m.(type) {
	case CommandLogin:
		tag, body = tagCommandLogin, wireCommandLogin{User: c.User, Password: c.Password, Metadata: c.Metadata}
	case CommandUserSelf:
		tag, body = tagCommandUserSelf, struct{}{}
	case CommandUserCreate:
		tag, body = tagCommandUserCreate, wireCommandUserCreate{Name: c.Name, RealName: c.RealName, Email: c.Email, Password: c.Password}
	case CommandUserGet:
		tag, body = tagCommandUserGet, wireID{ID: c.ID.String()}
	case CommandUserGetByEmail:
		tag, body = tagCommandUserGetByEmail, wireEmail{Email: c.Email}
	case CommandUserUpdate:
		tag, body = tagCommandUserUpdate, wireCommandUserUpdate{
			ID:       c.ID.String(),
			Name:     optStringToWire(c.Name),
			RealName: optStringToWire(c.RealName),
			Password: optStringToWire(c.Password),
		}
	case CommandUserEmailAdd:
		tag, body = tagCommandUserEmailAdd, wireIDEmail{ID: c.ID.String(), Email: c.Email}
	case CommandUserEmailRemove:
		tag, body = tagCommandUserEmailRemove, wireIDEmail{ID: c.ID.String(), Email: c.Email}
	case CommandUserDelete:
		tag, body = tagCommandUserDelete, wireID{ID: c.ID.String()}
	case CommandUserSearchBegin:
		tag, body = tagCommandUserSearchBegin, wireSearchBegin{Parameters: searchParametersToWire(c.Parameters)}
	case CommandUserSearchNext:
		tag, body = tagCommandUserSearchNext, struct{}{}
	case CommandUserSearchPrevious:
		tag, body = tagCommandUserSearchPrevious, struct{}{}
	case CommandUserBanCreate:
		tag, body = tagCommandUserBanCreate, wireBanCreate{ID: c.ID.String(), Reason: c.Reason, Expires: optTimeToWire(c.Expires)}
	case CommandUserBanDelete:
		tag, body = tagCommandUserBanDelete, wireID{ID: c.ID.String()}
	case CommandUserBanGet:
		tag, body = tagCommandUserBanGet, wireID{ID: c.ID.String()}
	case CommandAdminSelf:
		tag, body = tagCommandAdminSelf, struct{}{}
	case CommandAdminCreate:
		tag, body = tagCommandAdminCreate, wireCommandAdminCreate{
			Name:        c.Name,
			RealName:    c.RealName,
			Email:       c.Email,
			Password:    c.Password,
			Permissions: permissionsToWire(c.Permissions),
		}
	case CommandAdminGet:
		tag, body = tagCommandAdminGet, wireID{ID: c.ID.String()}
	case CommandAdminSearchBegin:
		tag, body = tagCommandAdminSearchBegin, wireSearchBegin{Parameters: searchParametersToWire(c.Parameters)}
	case CommandAdminSearchNext:
		tag, body = tagCommandAdminSearchNext, struct{}{}
	case CommandAdminSearchPrevious:
		tag, body = tagCommandAdminSearchPrevious, struct{}{}
	case CommandAdminPermissionGrant:
		tag, body = tagCommandAdminPermissionGrant, wirePermissionChange{ID: c.ID.String(), Permission: c.Permission.String()}
	case CommandAdminPermissionRevoke:
		tag, body = tagCommandAdminPermissionRevoke, wirePermissionChange{ID: c.ID.String(), Permission: c.Permission.String()}
	case CommandAdminBanCreate:
		tag, body = tagCommandAdminBanCreate, wireBanCreate{ID: c.ID.String(), Reason: c.Reason, Expires: optTimeToWire(c.Expires)}
	case CommandAdminBanDelete:
		tag, body = tagCommandAdminBanDelete, wireID{ID: c.ID.String()}
	case CommandAuditSearchBegin:
		tag, body = tagCommandAuditSearchBegin, wireSearchBegin{Parameters: searchParametersToWire(c.Parameters)}
	case CommandAuditSearchNext:
		tag, body = tagCommandAuditSearchNext, struct{}{}
	case CommandAuditSearchPrevious:
		tag, body = tagCommandAuditSearchPrevious, struct{}{}
	case ResponseLogin:
		w := wireResponseLogin{RequestID: c.RequestID.String(), Admin: []wireAdmin{}, User: []wireUser{}}
		if c.Admin != nil {
			w.Admin = []wireAdmin{adminToWire(*c.Admin)}
		}
		if c.User != nil {
			w.User = []wireUser{userToWire(*c.User)}
		}
		tag, body = tagResponseLogin, w
	case ResponseOK:
		tag, body = tagResponseOK, wireRequestID{RequestID: c.RequestID.String()}
	case ResponseUser:
		tag, body = tagResponseUser, wireResponseUser{RequestID: c.RequestID.String(), User: userToWire(c.User)}
	case ResponseAdmin:
		tag, body = tagResponseAdmin, wireResponseAdmin{RequestID: c.RequestID.String(), Admin: adminToWire(c.Admin)}
	case ResponseUserPage:
		tag, body = tagResponseUserPage, wireResponsePage[wireUser]{
			RequestID: c.RequestID.String(),
			Page:      pageToWire(c.Page, userToWire),
		}
	case ResponseAdminPage:
		tag, body = tagResponseAdminPage, wireResponsePage[wireAdmin]{
			RequestID: c.RequestID.String(),
			Page:      pageToWire(c.Page, adminToWire),
		}
	case ResponseAuditPage:
		tag, body = tagResponseAuditPage, wireResponsePage[wireAuditEvent]{
			RequestID: c.RequestID.String(),
			Page:      pageToWire(c.Page, auditEventToWire),
		}
	case ResponseBan:
		w := wireResponseBan{RequestID: c.RequestID.String(), Ban: []wireBan{}}
		if c.Ban != nil {
			w.Ban = []wireBan{banToWire(*c.Ban)}
		}
		tag, body = tagResponseBan, w
	case ResponseError:
		tag, body = tagResponseError, wireResponseError{
			RequestID:   c.RequestID.String(),
			Code:        string(c.Code),
			Message:     c.Message,
			Attributes:  c.Attributes,
			Remediation: optStringToWire(c.Remediation),
			Blame:       string(c.Blame),
		}
	default:
		return nil, protocolErrf("unencodable message type %T", m)
	}

	raw, err := encMode.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(errors.CodeProtocolError, "encode message body", err)
	}
	return encMode.Marshal(envelope{Tag: tag, Body: raw})
}

func decodeEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return envelope{}, errors.Wrap(errors.CodeProtocolError, "malformed message envelope", err)
	}
	if env.Tag == "" {
		return envelope{}, protocolErrf("missing message tag")
	}
	return env, nil
}

func decodeBody[W any](body cbor.RawMessage) (W, error) {
	var w W
	if err := decMode.Unmarshal(body, &w); err != nil {
		return w, errors.Wrap(errors.CodeProtocolError, "malformed message body", err)
	}
	return w, nil
}

// commandDecoders is the closed registry of commands accepted at the generic
// command endpoint. CommandLogin is deliberately absent: the login command is
// structurally not accepted here.
var commandDecoders = map[string]func(cbor.RawMessage) (Message, error){
	tagCommandUserSelf: decodeEmpty(CommandUserSelf{}),
	tagCommandUserCreate: func(body cbor.RawMessage) (Message, error) {
		w, err := decodeBody[wireCommandUserCreate](body)
		if err != nil {
			return nil, err
		}
		return CommandUserCreate{Name: w.Name, RealName: w.RealName, Email: w.Email, Password: w.Password}, nil
	},
	tagCommandUserGet: decodeID(func(id uuid.UUID) Message { return CommandUserGet{ID: id} }),
	tagCommandUserGetByEmail: func(body cbor.RawMessage) (Message, error) {
		w, err := decodeBody[wireEmail](body)
		if err != nil {
			return nil, err
		}
		if w.Email == "" {
			return nil, protocolErrf("at least one email required")
		}
		return CommandUserGetByEmail{Email: w.Email}, nil
	},
	tagCommandUserUpdate: func(body cbor.RawMessage) (Message, error) {
		w, err := decodeBody[wireCommandUserUpdate](body)
		if err != nil {
			return nil, err
		}
		id, err := uuidFromWire(w.ID)
		if err != nil {
			return nil, err
		}
		name, err := optStringFromWire(w.Name)
		if err != nil {
			return nil, err
		}
		realName, err := optStringFromWire(w.RealName)
		if err != nil {
			return nil, err
		}
		password, err := optStringFromWire(w.Password)
		if err != nil {
			return nil, err
		}
		return CommandUserUpdate{ID: id, Name: name, RealName: realName, Password: password}, nil
	},
	tagCommandUserEmailAdd: decodeIDEmail(func(id uuid.UUID, email string) Message {
		return CommandUserEmailAdd{ID: id, Email: email}
	}),
	tagCommandUserEmailRemove: decodeIDEmail(func(id uuid.UUID, email string) Message {
		return CommandUserEmailRemove{ID: id, Email: email}
	}),
	tagCommandUserDelete:         decodeID(func(id uuid.UUID) Message { return CommandUserDelete{ID: id} }),
	tagCommandUserSearchBegin:    decodeSearchBegin(func(p domain.SearchParameters) Message { return CommandUserSearchBegin{Parameters: p} }),
	tagCommandUserSearchNext:     decodeEmpty(CommandUserSearchNext{}),
	tagCommandUserSearchPrevious: decodeEmpty(CommandUserSearchPrevious{}),
	tagCommandUserBanCreate: decodeBanCreate(func(id uuid.UUID, reason string, expires *time.Time) Message {
		return CommandUserBanCreate{ID: id, Reason: reason, Expires: expires}
	}),
	tagCommandUserBanDelete: decodeID(func(id uuid.UUID) Message { return CommandUserBanDelete{ID: id} }),
	tagCommandUserBanGet:    decodeID(func(id uuid.UUID) Message { return CommandUserBanGet{ID: id} }),
	tagCommandAdminSelf:     decodeEmpty(CommandAdminSelf{}),
	tagCommandAdminCreate: func(body cbor.RawMessage) (Message, error) {
		w, err := decodeBody[wireCommandAdminCreate](body)
		if err != nil {
			return nil, err
		}
		perms, err := permissionsFromWire(w.Permissions)
		if err != nil {
			return nil, err
		}
		return CommandAdminCreate{Name: w.Name, RealName: w.RealName, Email: w.Email, Password: w.Password, Permissions: perms}, nil
	},
	tagCommandAdminGet:            decodeID(func(id uuid.UUID) Message { return CommandAdminGet{ID: id} }),
	tagCommandAdminSearchBegin:    decodeSearchBegin(func(p domain.SearchParameters) Message { return CommandAdminSearchBegin{Parameters: p} }),
	tagCommandAdminSearchNext:     decodeEmpty(CommandAdminSearchNext{}),
	tagCommandAdminSearchPrevious: decodeEmpty(CommandAdminSearchPrevious{}),
	tagCommandAdminPermissionGrant: decodePermissionChange(func(id uuid.UUID, p domain.Permission) Message {
		return CommandAdminPermissionGrant{ID: id, Permission: p}
	}),
	tagCommandAdminPermissionRevoke: decodePermissionChange(func(id uuid.UUID, p domain.Permission) Message {
		return CommandAdminPermissionRevoke{ID: id, Permission: p}
	}),
	tagCommandAdminBanCreate: decodeBanCreate(func(id uuid.UUID, reason string, expires *time.Time) Message {
		return CommandAdminBanCreate{ID: id, Reason: reason, Expires: expires}
	}),
	tagCommandAdminBanDelete:   decodeID(func(id uuid.UUID) Message { return CommandAdminBanDelete{ID: id} }),
	tagCommandAuditSearchBegin: decodeSearchBegin(func(p domain.SearchParameters) Message { return CommandAuditSearchBegin{Parameters: p} }),
	tagCommandAuditSearchNext:     decodeEmpty(CommandAuditSearchNext{}),
	tagCommandAuditSearchPrevious: decodeEmpty(CommandAuditSearchPrevious{}),
}

func decodeEmpty(m Message) func(cbor.RawMessage) (Message, error) {
	return func(body cbor.RawMessage) (Message, error) {
		if _, err := decodeBody[struct{}](body); err != nil {
			return nil, err
		}
		return m, nil
	}
}

func decodeID(build func(uuid.UUID) Message) func(cbor.RawMessage) (Message, error) {
	return func(body cbor.RawMessage) (Message, error) {
		w, err := decodeBody[wireID](body)
		if err != nil {
			return nil, err
		}
		id, err := uuidFromWire(w.ID)
		if err != nil {
			return nil, err
		}
		return build(id), nil
	}
}

func decodeIDEmail(build func(uuid.UUID, string) Message) func(cbor.RawMessage) (Message, error) {
	return func(body cbor.RawMessage) (Message, error) {
		w, err := decodeBody[wireIDEmail](body)
		if err != nil {
			return nil, err
		}
		id, err := uuidFromWire(w.ID)
		if err != nil {
			return nil, err
		}
		if w.Email == "" {
			return nil, protocolErrf("at least one email required")
		}
		return build(id, w.Email), nil
	}
}

func decodeSearchBegin(build func(domain.SearchParameters) Message) func(cbor.RawMessage) (Message, error) {
	return func(body cbor.RawMessage) (Message, error) {
		w, err := decodeBody[wireSearchBegin](body)
		if err != nil {
			return nil, err
		}
		p, err := searchParametersFromWire(w.Parameters)
		if err != nil {
			return nil, err
		}
		return build(p), nil
	}
}

func decodeBanCreate(build func(uuid.UUID, string, *time.Time) Message) func(cbor.RawMessage) (Message, error) {
	return func(body cbor.RawMessage) (Message, error) {
		w, err := decodeBody[wireBanCreate](body)
		if err != nil {
			return nil, err
		}
		id, err := uuidFromWire(w.ID)
		if err != nil {
			return nil, err
		}
		expires, err := optTimeFromWire(w.Expires)
		if err != nil {
			return nil, err
		}
		return build(id, w.Reason, expires), nil
	}
}

func decodePermissionChange(build func(uuid.UUID, domain.Permission) Message) func(cbor.RawMessage) (Message, error) {
	return func(body cbor.RawMessage) (Message, error) {
		w, err := decodeBody[wirePermissionChange](body)
		if err != nil {
			return nil, err
		}
		id, err := uuidFromWire(w.ID)
		if err != nil {
			return nil, err
		}
		p, err := permissionFromWire(w.Permission)
		if err != nil {
			return nil, err
		}
		return build(id, p), nil
	}
}

// responseDecoders is the closed registry of response tags.
var responseDecoders = map[string]func(cbor.RawMessage) (Message, error){
	tagResponseLogin: func(body cbor.RawMessage) (Message, error) {
		w, err := decodeBody[wireResponseLogin](body)
		if err != nil {
			return nil, err
		}
		requestID, err := uuidFromWire(w.RequestID)
		if err != nil {
			return nil, err
		}
		if len(w.Admin)+len(w.User) != 1 {
			return nil, protocolErrf("login response must carry exactly one principal")
		}
		resp := ResponseLogin{RequestID: requestID}
		if len(w.Admin) == 1 {
			a, err := adminFromWire(w.Admin[0])
			if err != nil {
				return nil, err
			}
			resp.Admin = &a
		} else {
			u, err := userFromWire(w.User[0])
			if err != nil {
				return nil, err
			}
			resp.User = &u
		}
		return resp, nil
	},
	tagResponseOK: func(body cbor.RawMessage) (Message, error) {
		w, err := decodeBody[wireRequestID](body)
		if err != nil {
			return nil, err
		}
		requestID, err := uuidFromWire(w.RequestID)
		if err != nil {
			return nil, err
		}
		return ResponseOK{RequestID: requestID}, nil
	},
	tagResponseUser: func(body cbor.RawMessage) (Message, error) {
		w, err := decodeBody[wireResponseUser](body)
		if err != nil {
			return nil, err
		}
		requestID, err := uuidFromWire(w.RequestID)
		if err != nil {
			return nil, err
		}
		u, err := userFromWire(w.User)
		if err != nil {
			return nil, err
		}
		return ResponseUser{RequestID: requestID, User: u}, nil
	},
	tagResponseAdmin: func(body cbor.RawMessage) (Message, error) {
		w, err := decodeBody[wireResponseAdmin](body)
		if err != nil {
			return nil, err
		}
		requestID, err := uuidFromWire(w.RequestID)
		if err != nil {
			return nil, err
		}
		a, err := adminFromWire(w.Admin)
		if err != nil {
			return nil, err
		}
		return ResponseAdmin{RequestID: requestID, Admin: a}, nil
	},
	tagResponseUserPage: func(body cbor.RawMessage) (Message, error) {
		w, err := decodeBody[wireResponsePage[wireUser]](body)
		if err != nil {
			return nil, err
		}
		requestID, err := uuidFromWire(w.RequestID)
		if err != nil {
			return nil, err
		}
		page, err := pageFromWire(w.Page, userFromWire)
		if err != nil {
			return nil, err
		}
		return ResponseUserPage{RequestID: requestID, Page: page}, nil
	},
	tagResponseAdminPage: func(body cbor.RawMessage) (Message, error) {
		w, err := decodeBody[wireResponsePage[wireAdmin]](body)
		if err != nil {
			return nil, err
		}
		requestID, err := uuidFromWire(w.RequestID)
		if err != nil {
			return nil, err
		}
		page, err := pageFromWire(w.Page, adminFromWire)
		if err != nil {
			return nil, err
		}
		return ResponseAdminPage{RequestID: requestID, Page: page}, nil
	},
	tagResponseAuditPage: func(body cbor.RawMessage) (Message, error) {
		w, err := decodeBody[wireResponsePage[wireAuditEvent]](body)
		if err != nil {
			return nil, err
		}
		requestID, err := uuidFromWire(w.RequestID)
		if err != nil {
			return nil, err
		}
		page, err := pageFromWire(w.Page, auditEventFromWire)
		if err != nil {
			return nil, err
		}
		return ResponseAuditPage{RequestID: requestID, Page: page}, nil
	},
	tagResponseBan: func(body cbor.RawMessage) (Message, error) {
		w, err := decodeBody[wireResponseBan](body)
		if err != nil {
			return nil, err
		}
		requestID, err := uuidFromWire(w.RequestID)
		if err != nil {
			return nil, err
		}
		resp := ResponseBan{RequestID: requestID}
		switch len(w.Ban) {
		case 0:
		case 1:
			b, err := banFromWire(w.Ban[0])
			if err != nil {
				return nil, err
			}
			resp.Ban = &b
		default:
			return nil, protocolErrf("malformed optional field: %d elements", len(w.Ban))
		}
		return resp, nil
	},
	tagResponseError: func(body cbor.RawMessage) (Message, error) {
		w, err := decodeBody[wireResponseError](body)
		if err != nil {
			return nil, err
		}
		requestID, err := uuidFromWire(w.RequestID)
		if err != nil {
			return nil, err
		}
		remediation, err := optStringFromWire(w.Remediation)
		if err != nil {
			return nil, err
		}
		blame := errors.Blame(w.Blame)
		if blame != errors.BlameClient && blame != errors.BlameServer {
			return nil, protocolErrf("unrecognized blame tag %q", w.Blame)
		}
		return ResponseError{
			RequestID:   requestID,
			Code:        errors.Code(w.Code),
			Message:     w.Message,
			Attributes:  w.Attributes,
			Remediation: remediation,
			Blame:       blame,
		}, nil
	},
}

// DecodeLogin decodes the single command accepted at the login endpoint.
func DecodeLogin(data []byte) (CommandLogin, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return CommandLogin{}, err
	}
	if env.Tag != tagCommandLogin {
		return CommandLogin{}, errors.New(errors.CodeProtocolError, "command not here")
	}
	w, err := decodeBody[wireCommandLogin](env.Body)
	if err != nil {
		return CommandLogin{}, err
	}
	if w.User == "" {
		return CommandLogin{}, protocolErrf("login user name is required")
	}
	return CommandLogin{User: w.User, Password: w.Password, Metadata: w.Metadata}, nil
}

// DecodeCommand decodes a command for the generic command endpoint. The
// login command is rejected here structurally.
func DecodeCommand(data []byte) (Message, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	if env.Tag == tagCommandLogin {
		return nil, errors.New(errors.CodeProtocolError, "command not here")
	}
	decode, ok := commandDecoders[env.Tag]
	if !ok {
		return nil, protocolErrf("unrecognized message tag %q", env.Tag)
	}
	return decode(env.Body)
}

// DecodeResponse decodes a server response on the client side. Command tags
// are never valid responses.
func DecodeResponse(data []byte) (Message, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	decode, ok := responseDecoders[env.Tag]
	if !ok {
		if _, isCommand := commandDecoders[env.Tag]; isCommand || env.Tag == tagCommandLogin {
			return nil, protocolErrf("message %q is not a response", env.Tag)
		}
		return nil, protocolErrf("unrecognized message tag %q", env.Tag)
	}
	return decode(env.Body)
}
