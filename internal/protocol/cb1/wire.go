package cb1

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/silvermint/idserver/internal/domain"
	"github.com/silvermint/idserver/internal/errors"
)

// Message tags. One wire constructor per domain case; the tables in codec.go
// are the closed registry.
const (
	tagCommandLogin                 = "CommandLogin"
	tagCommandUserSelf              = "CommandUserSelf"
	tagCommandUserCreate            = "CommandUserCreate"
	tagCommandUserGet               = "CommandUserGet"
	tagCommandUserGetByEmail        = "CommandUserGetByEmail"
	tagCommandUserUpdate            = "CommandUserUpdate"
	tagCommandUserEmailAdd          = "CommandUserEmailAdd"
	tagCommandUserEmailRemove       = "CommandUserEmailRemove"
	tagCommandUserDelete            = "CommandUserDelete"
	tagCommandUserSearchBegin       = "CommandUserSearchBegin"
	tagCommandUserSearchNext        = "CommandUserSearchNext"
	tagCommandUserSearchPrevious    = "CommandUserSearchPrevious"
	tagCommandUserBanCreate         = "CommandUserBanCreate"
	tagCommandUserBanDelete         = "CommandUserBanDelete"
	tagCommandUserBanGet            = "CommandUserBanGet"
	tagCommandAdminSelf             = "CommandAdminSelf"
	tagCommandAdminCreate           = "CommandAdminCreate"
	tagCommandAdminGet              = "CommandAdminGet"
	tagCommandAdminSearchBegin      = "CommandAdminSearchBegin"
	tagCommandAdminSearchNext       = "CommandAdminSearchNext"
	tagCommandAdminSearchPrevious   = "CommandAdminSearchPrevious"
	tagCommandAdminPermissionGrant  = "CommandAdminPermissionGrant"
	tagCommandAdminPermissionRevoke = "CommandAdminPermissionRevoke"
	tagCommandAdminBanCreate        = "CommandAdminBanCreate"
	tagCommandAdminBanDelete        = "CommandAdminBanDelete"
	tagCommandAuditSearchBegin      = "CommandAuditSearchBegin"
	tagCommandAuditSearchNext       = "CommandAuditSearchNext"
	tagCommandAuditSearchPrevious   = "CommandAuditSearchPrevious"

	tagResponseLogin     = "ResponseLogin"
	tagResponseOK        = "ResponseOK"
	tagResponseUser      = "ResponseUser"
	tagResponseAdmin     = "ResponseAdmin"
	tagResponseUserPage  = "ResponseUserPage"
	tagResponseAdminPage = "ResponseAdminPage"
	tagResponseAuditPage = "ResponseAuditPage"
	tagResponseBan       = "ResponseBan"
	tagResponseError     = "ResponseError"
)

func protocolErrf(format string, args ...any) *errors.Error {
	return errors.New(errors.CodeProtocolError, fmt.Sprintf(format, args...))
}

// wireTimestamp is the fixed-width timestamp structure. Encoding is always
// UTC; decode reconstructs UTC with no timezone conversion.
type wireTimestamp struct {
	_      struct{} `cbor:",toarray"`
	Year   uint32
	Month  uint8
	Day    uint8
	Hour   uint8
	Minute uint8
	Second uint8
	Micros uint32
}

func timestampToWire(t time.Time) wireTimestamp {
	t = t.UTC()
	return wireTimestamp{
		Year:   uint32(t.Year()),
		Month:  uint8(t.Month()),
		Day:    uint8(t.Day()),
		Hour:   uint8(t.Hour()),
		Minute: uint8(t.Minute()),
		Second: uint8(t.Second()),
		Micros: uint32(t.Nanosecond() / 1000),
	}
}

func timestampFromWire(w wireTimestamp) (time.Time, error) {
	if w.Month < 1 || w.Month > 12 {
		return time.Time{}, protocolErrf("malformed timestamp: month %d", w.Month)
	}
	if w.Day < 1 || w.Day > 31 {
		return time.Time{}, protocolErrf("malformed timestamp: day %d", w.Day)
	}
	if w.Hour > 23 || w.Minute > 59 || w.Second > 59 {
		return time.Time{}, protocolErrf("malformed timestamp: time %02d:%02d:%02d", w.Hour, w.Minute, w.Second)
	}
	if w.Micros > 999999 {
		return time.Time{}, protocolErrf("malformed timestamp: microseconds %d", w.Micros)
	}

	t := time.Date(int(w.Year), time.Month(w.Month), int(w.Day),
		int(w.Hour), int(w.Minute), int(w.Second), int(w.Micros)*1000, time.UTC)

	// time.Date normalizes out-of-range days (February 30 becomes March 1);
	// the wire treats such input as malformed instead.
	if t.Day() != int(w.Day) || t.Month() != time.Month(w.Month) || t.Year() != int(w.Year) {
		return time.Time{}, protocolErrf("malformed timestamp: no such date %04d-%02d-%02d", w.Year, w.Month, w.Day)
	}
	return t, nil
}

// Optional fields travel as arrays of zero or one element, distinguishing
// "field omitted" from "field empty".

func optStringToWire(s *string) []string {
	if s == nil {
		return []string{}
	}
	return []string{*s}
}

func optStringFromWire(ss []string) (*string, error) {
	switch len(ss) {
	case 0:
		return nil, nil
	case 1:
		v := ss[0]
		return &v, nil
	default:
		return nil, protocolErrf("malformed optional field: %d elements", len(ss))
	}
}

func optTimeToWire(t *time.Time) []wireTimestamp {
	if t == nil {
		return []wireTimestamp{}
	}
	return []wireTimestamp{timestampToWire(*t)}
}

func optTimeFromWire(ws []wireTimestamp) (*time.Time, error) {
	switch len(ws) {
	case 0:
		return nil, nil
	case 1:
		t, err := timestampFromWire(ws[0])
		if err != nil {
			return nil, err
		}
		return &t, nil
	default:
		return nil, protocolErrf("malformed optional field: %d elements", len(ws))
	}
}

func uuidFromWire(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, protocolErrf("malformed uuid %q", s)
	}
	return id, nil
}

func permissionsToWire(set domain.PermissionSet) []string {
	perms := set.Slice()
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, p.String())
	}
	return out
}

func permissionFromWire(name string) (domain.Permission, error) {
	p, err := domain.ParsePermission(name)
	if err != nil {
		return domain.PermissionUnspecified, protocolErrf("unrecognized permission tag %q", name)
	}
	return p, nil
}

func permissionsFromWire(names []string) (domain.PermissionSet, error) {
	var set domain.PermissionSet
	for _, name := range names {
		p, err := permissionFromWire(name)
		if err != nil {
			return domain.PermissionSet{}, err
		}
		set = set.With(p)
	}
	return set, nil
}

type wireOrdering struct {
	Column    string
	Ascending bool
}

func orderingToWire(o domain.Ordering) wireOrdering {
	return wireOrdering{Column: o.Column.String(), Ascending: o.Ascending}
}

func orderingFromWire(w wireOrdering) (domain.Ordering, error) {
	col, err := domain.ParseColumn(w.Column)
	if err != nil {
		return domain.Ordering{}, protocolErrf("unrecognized ordering column tag %q", w.Column)
	}
	return domain.Ordering{Column: col, Ascending: w.Ascending}, nil
}

type wireSearchParameters struct {
	CreatedLower wireTimestamp
	CreatedUpper wireTimestamp
	UpdatedLower wireTimestamp
	UpdatedUpper wireTimestamp
	Filter       []string
	Ordering     wireOrdering
	Limit        uint32
}

func searchParametersToWire(p domain.SearchParameters) wireSearchParameters {
	var filter *string
	if p.Filter != "" {
		filter = &p.Filter
	}
	return wireSearchParameters{
		CreatedLower: timestampToWire(p.Created.Lower),
		CreatedUpper: timestampToWire(p.Created.Upper),
		UpdatedLower: timestampToWire(p.Updated.Lower),
		UpdatedUpper: timestampToWire(p.Updated.Upper),
		Filter:       optStringToWire(filter),
		Ordering:     orderingToWire(p.Ordering),
		Limit:        uint32(p.Limit),
	}
}

func searchParametersFromWire(w wireSearchParameters) (domain.SearchParameters, error) {
	var p domain.SearchParameters
	var err error
	if p.Created.Lower, err = timestampFromWire(w.CreatedLower); err != nil {
		return domain.SearchParameters{}, err
	}
	if p.Created.Upper, err = timestampFromWire(w.CreatedUpper); err != nil {
		return domain.SearchParameters{}, err
	}
	if p.Updated.Lower, err = timestampFromWire(w.UpdatedLower); err != nil {
		return domain.SearchParameters{}, err
	}
	if p.Updated.Upper, err = timestampFromWire(w.UpdatedUpper); err != nil {
		return domain.SearchParameters{}, err
	}
	filter, err := optStringFromWire(w.Filter)
	if err != nil {
		return domain.SearchParameters{}, err
	}
	if filter != nil {
		p.Filter = *filter
	}
	if p.Ordering, err = orderingFromWire(w.Ordering); err != nil {
		return domain.SearchParameters{}, err
	}
	p.Limit = int(w.Limit)
	return p, nil
}

type wirePassword struct {
	Algorithm string
	Hash      string
	Salt      string
}

func passwordToWire(p domain.Password) wirePassword {
	return wirePassword{Algorithm: p.Algorithm, Hash: p.Hash, Salt: p.Salt}
}

func passwordFromWire(w wirePassword) domain.Password {
	return domain.Password{Algorithm: w.Algorithm, Hash: w.Hash, Salt: w.Salt}
}

type wireUser struct {
	ID       string
	Name     string
	RealName string
	Emails   []string
	Created  wireTimestamp
	Updated  wireTimestamp
	Password wirePassword
}

func userToWire(u domain.User) wireUser {
	return wireUser{
		ID:       u.ID.String(),
		Name:     u.Name,
		RealName: u.RealName,
		Emails:   u.Emails,
		Created:  timestampToWire(u.Created),
		Updated:  timestampToWire(u.Updated),
		Password: passwordToWire(u.Password),
	}
}

func userFromWire(w wireUser) (domain.User, error) {
	id, err := uuidFromWire(w.ID)
	if err != nil {
		return domain.User{}, err
	}
	if len(w.Emails) == 0 {
		return domain.User{}, errors.New(errors.CodeProtocolError, "at least one email required")
	}
	created, err := timestampFromWire(w.Created)
	if err != nil {
		return domain.User{}, err
	}
	updated, err := timestampFromWire(w.Updated)
	if err != nil {
		return domain.User{}, err
	}
	return domain.User{
		ID:       id,
		Name:     w.Name,
		RealName: w.RealName,
		Emails:   w.Emails,
		Created:  created,
		Updated:  updated,
		Password: passwordFromWire(w.Password),
	}, nil
}

type wireAdmin struct {
	ID          string
	Name        string
	RealName    string
	Emails      []string
	Created     wireTimestamp
	Updated     wireTimestamp
	Password    wirePassword
	Permissions []string
}

func adminToWire(a domain.Admin) wireAdmin {
	return wireAdmin{
		ID:          a.ID.String(),
		Name:        a.Name,
		RealName:    a.RealName,
		Emails:      a.Emails,
		Created:     timestampToWire(a.Created),
		Updated:     timestampToWire(a.Updated),
		Password:    passwordToWire(a.Password),
		Permissions: permissionsToWire(a.Permissions),
	}
}

func adminFromWire(w wireAdmin) (domain.Admin, error) {
	u, err := userFromWire(wireUser{
		ID:       w.ID,
		Name:     w.Name,
		RealName: w.RealName,
		Emails:   w.Emails,
		Created:  w.Created,
		Updated:  w.Updated,
		Password: w.Password,
	})
	if err != nil {
		return domain.Admin{}, err
	}
	perms, err := permissionsFromWire(w.Permissions)
	if err != nil {
		return domain.Admin{}, err
	}
	return domain.Admin{
		ID:          u.ID,
		Name:        u.Name,
		RealName:    u.RealName,
		Emails:      u.Emails,
		Created:     u.Created,
		Updated:     u.Updated,
		Password:    u.Password,
		Permissions: perms,
	}, nil
}

type wireBan struct {
	PrincipalID string
	Reason      string
	Expires     []wireTimestamp
}

func banToWire(b domain.Ban) wireBan {
	return wireBan{
		PrincipalID: b.PrincipalID.String(),
		Reason:      b.Reason,
		Expires:     optTimeToWire(b.Expires),
	}
}

func banFromWire(w wireBan) (domain.Ban, error) {
	id, err := uuidFromWire(w.PrincipalID)
	if err != nil {
		return domain.Ban{}, err
	}
	expires, err := optTimeFromWire(w.Expires)
	if err != nil {
		return domain.Ban{}, err
	}
	return domain.Ban{PrincipalID: id, Reason: w.Reason, Expires: expires}, nil
}

type wireAuditEvent struct {
	Seq   int64
	Time  wireTimestamp
	Actor string
	Type  string
	Data  map[string]string
}

func auditEventToWire(e domain.AuditEvent) wireAuditEvent {
	return wireAuditEvent{
		Seq:   e.Seq,
		Time:  timestampToWire(e.Time),
		Actor: e.Actor.String(),
		Type:  e.Type,
		Data:  e.Data,
	}
}

func auditEventFromWire(w wireAuditEvent) (domain.AuditEvent, error) {
	at, err := timestampFromWire(w.Time)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	actor, err := uuidFromWire(w.Actor)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	return domain.AuditEvent{Seq: w.Seq, Time: at, Actor: actor, Type: w.Type, Data: w.Data}, nil
}

type wirePage[W any] struct {
	Items       []W
	Index       uint32
	Count       uint32
	FirstOffset uint64
}

func pageToWire[T, W any](p domain.Page[T], conv func(T) W) wirePage[W] {
	items := make([]W, 0, len(p.Items))
	for _, item := range p.Items {
		items = append(items, conv(item))
	}
	return wirePage[W]{
		Items:       items,
		Index:       uint32(p.PageIndex),
		Count:       uint32(p.PageCount),
		FirstOffset: uint64(p.PageFirstOffset),
	}
}

func pageFromWire[W, T any](w wirePage[W], conv func(W) (T, error)) (domain.Page[T], error) {
	var items []T
	for _, item := range w.Items {
		converted, err := conv(item)
		if err != nil {
			return domain.Page[T]{}, err
		}
		items = append(items, converted)
	}
	return domain.Page[T]{
		Items:           items,
		PageIndex:       int(w.Index),
		PageCount:       int(w.Count),
		PageFirstOffset: int64(w.FirstOffset),
	}, nil
}
