package cb1

import (
	stderrors "errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/silvermint/idserver/internal/domain"
	"github.com/silvermint/idserver/internal/errors"
)

var (
	testTime = time.Date(2026, 7, 9, 18, 41, 5, 123456000, time.UTC)
	testID   = uuid.MustParse("0d2a7a33-8d81-4e57-9c3f-74f6a0f3b8d1")
	reqID    = uuid.MustParse("5cb5c335-1dcb-44cf-aef7-426ac0e58f5e")
)

func testUser() domain.User {
	return domain.User{
		ID:       testID,
		Name:     "someone",
		RealName: "Someone Real",
		Emails:   []string{"someone@example.com", "other@example.com"},
		Created:  testTime,
		Updated:  testTime.Add(3 * time.Hour),
		Password: domain.Password{Algorithm: domain.AlgorithmBcrypt},
	}
}

func testAdmin() domain.Admin {
	return domain.Admin{
		ID:          testID,
		Name:        "root",
		RealName:    "Root Admin",
		Emails:      []string{"root@example.com"},
		Created:     testTime,
		Updated:     testTime,
		Password:    domain.Password{Algorithm: domain.AlgorithmBcrypt},
		Permissions: domain.NewPermissionSet(domain.PermissionAdminWrite, domain.PermissionUserRead),
	}
}

func roundTripCommand(t *testing.T, m Message) Message {
	t.Helper()
	data, err := Encode(m)
	if err != nil {
		t.Fatalf("encode %T: %v", m, err)
	}
	decoded, err := DecodeCommand(data)
	if err != nil {
		t.Fatalf("decode %T: %v", m, err)
	}
	return decoded
}

func roundTripResponse(t *testing.T, m Message) Message {
	t.Helper()
	data, err := Encode(m)
	if err != nil {
		t.Fatalf("encode %T: %v", m, err)
	}
	decoded, err := DecodeResponse(data)
	if err != nil {
		t.Fatalf("decode %T: %v", m, err)
	}
	return decoded
}

func TestRoundTripCommands(t *testing.T) {
	name := "newname"
	expires := testTime.Add(48 * time.Hour)
	params := domain.SearchParameters{
		Created:  domain.AnyTime(),
		Updated:  domain.AnyTime(),
		Filter:   "someone",
		Ordering: domain.Ordering{Column: domain.ColumnByName, Ascending: true},
		Limit:    150,
	}

	messages := []Message{
		CommandUserSelf{},
		CommandUserCreate{Name: "someone", RealName: "Someone", Email: "a@b.c", Password: "pw"},
		CommandUserGet{ID: testID},
		CommandUserGetByEmail{Email: "a@b.c"},
		CommandUserUpdate{ID: testID, Name: &name},
		CommandUserEmailAdd{ID: testID, Email: "x@y.z"},
		CommandUserEmailRemove{ID: testID, Email: "x@y.z"},
		CommandUserDelete{ID: testID},
		CommandUserSearchBegin{Parameters: params},
		CommandUserSearchNext{},
		CommandUserSearchPrevious{},
		CommandUserBanCreate{ID: testID, Reason: "spam", Expires: &expires},
		CommandUserBanCreate{ID: testID, Reason: "spam forever"},
		CommandUserBanDelete{ID: testID},
		CommandUserBanGet{ID: testID},
		CommandAdminSelf{},
		CommandAdminCreate{Name: "op", RealName: "Op", Email: "op@x.y", Password: "pw",
			Permissions: domain.NewPermissionSet(domain.PermissionUserRead)},
		CommandAdminGet{ID: testID},
		CommandAdminSearchBegin{Parameters: params},
		CommandAdminSearchNext{},
		CommandAdminSearchPrevious{},
		CommandAdminPermissionGrant{ID: testID, Permission: domain.PermissionUserBan},
		CommandAdminPermissionRevoke{ID: testID, Permission: domain.PermissionUserBan},
		CommandAdminBanCreate{ID: testID, Reason: "rogue"},
		CommandAdminBanDelete{ID: testID},
		CommandAuditSearchBegin{Parameters: params},
		CommandAuditSearchNext{},
		CommandAuditSearchPrevious{},
	}

	for _, m := range messages {
		decoded := roundTripCommand(t, m)
		if !reflect.DeepEqual(decoded, m) {
			t.Errorf("round trip changed %T:\n got %#v\nwant %#v", m, decoded, m)
		}
	}
}

func TestRoundTripResponses(t *testing.T) {
	admin := testAdmin()
	user := testUser()
	ban := domain.Ban{PrincipalID: testID, Reason: "spam"}
	remediation := "log in again"

	messages := []Message{
		ResponseLogin{RequestID: reqID, Admin: &admin},
		ResponseLogin{RequestID: reqID, User: &user},
		ResponseOK{RequestID: reqID},
		ResponseUser{RequestID: reqID, User: user},
		ResponseAdmin{RequestID: reqID, Admin: admin},
		ResponseUserPage{RequestID: reqID, Page: domain.Page[domain.User]{
			Items: []domain.User{user}, PageIndex: 1, PageCount: 4, PageFirstOffset: 0,
		}},
		ResponseAdminPage{RequestID: reqID, Page: domain.Page[domain.Admin]{
			Items: []domain.Admin{admin}, PageIndex: 2, PageCount: 2, PageFirstOffset: 150,
		}},
		ResponseAuditPage{RequestID: reqID, Page: domain.Page[domain.AuditEvent]{
			Items: []domain.AuditEvent{{
				Seq: 7, Time: testTime, Actor: testID,
				Type: domain.EventUserCreated, Data: map[string]string{"user": "someone"},
			}},
			PageIndex: 1, PageCount: 1,
		}},
		ResponseBan{RequestID: reqID, Ban: &ban},
		ResponseBan{RequestID: reqID},
		ResponseError{
			RequestID:   reqID,
			Code:        errors.CodeSecurityPolicyDenied,
			Message:     "permission denied",
			Attributes:  map[string]string{"permission": "USER_WRITE"},
			Remediation: &remediation,
			Blame:       errors.BlameClient,
		},
	}

	for _, m := range messages {
		decoded := roundTripResponse(t, m)
		if !reflect.DeepEqual(decoded, m) {
			t.Errorf("round trip changed %T:\n got %#v\nwant %#v", m, decoded, m)
		}
	}
}

func TestTimestampMicrosecondPrecision(t *testing.T) {
	at := time.Date(2026, 2, 28, 23, 59, 59, 999999000, time.UTC)
	back, err := timestampFromWire(timestampToWire(at))
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if !back.Equal(at) {
		t.Fatalf("lost precision: %v != %v", back, at)
	}
	if back.Location() != time.UTC {
		t.Fatal("decode must reconstruct UTC")
	}
}

func TestTimestampRejectsMalformed(t *testing.T) {
	cases := []wireTimestamp{
		{Year: 2026, Month: 0, Day: 1},
		{Year: 2026, Month: 13, Day: 1},
		{Year: 2026, Month: 1, Day: 0},
		{Year: 2026, Month: 1, Day: 32},
		{Year: 2026, Month: 2, Day: 30},
		{Year: 2026, Month: 1, Day: 1, Hour: 24},
		{Year: 2026, Month: 1, Day: 1, Minute: 60},
		{Year: 2026, Month: 1, Day: 1, Second: 60},
		{Year: 2026, Month: 1, Day: 1, Micros: 1000000},
	}
	for _, w := range cases {
		if _, err := timestampFromWire(w); !errors.IsCode(err, errors.CodeProtocolError) {
			t.Errorf("timestamp %+v: err = %v", w, err)
		}
	}
}

func TestDecodeRejectsEmptyEmailList(t *testing.T) {
	w := userToWire(testUser())
	w.Emails = nil
	body, err := encMode.Marshal(wireResponseUser{RequestID: reqID.String(), User: w})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	data, err := encMode.Marshal(envelope{Tag: tagResponseUser, Body: body})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	_, err = DecodeResponse(data)
	if !errors.IsCode(err, errors.CodeProtocolError) {
		t.Fatalf("err = %v", err)
	}
	if err.Error() != "at least one email required" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestDecodeRejectsUnknownEnumTags(t *testing.T) {
	perm, err := encMode.Marshal(wirePermissionChange{ID: testID.String(), Permission: "SUPERUSER"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	data, err := encMode.Marshal(envelope{Tag: tagCommandAdminPermissionGrant, Body: perm})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	if _, err := DecodeCommand(data); !errors.IsCode(err, errors.CodeProtocolError) {
		t.Fatalf("permission tag err = %v", err)
	}

	search, err := encMode.Marshal(wireSearchBegin{Parameters: wireSearchParameters{
		CreatedLower: timestampToWire(testTime),
		CreatedUpper: timestampToWire(testTime),
		UpdatedLower: timestampToWire(testTime),
		UpdatedUpper: timestampToWire(testTime),
		Filter:       []string{},
		Ordering:     wireOrdering{Column: "BY_SHOE_SIZE", Ascending: true},
		Limit:        10,
	}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	data, err = encMode.Marshal(envelope{Tag: tagCommandUserSearchBegin, Body: search})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	if _, err := DecodeCommand(data); !errors.IsCode(err, errors.CodeProtocolError) {
		t.Fatalf("column tag err = %v", err)
	}
}

func TestDecodeRejectsUnknownMessageTag(t *testing.T) {
	body, _ := encMode.Marshal(struct{}{})
	data, err := encMode.Marshal(envelope{Tag: "CommandSelfDestruct", Body: body})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := DecodeCommand(data); !errors.IsCode(err, errors.CodeProtocolError) {
		t.Fatalf("err = %v", err)
	}
}

func TestLoginNotAcceptedAtCommandEndpoint(t *testing.T) {
	data, err := Encode(CommandLogin{User: "someone", Password: "pw"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	_, err = DecodeCommand(data)
	if !errors.IsCode(err, errors.CodeProtocolError) {
		t.Fatalf("err = %v", err)
	}
	if err.Error() != "command not here" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestLoginEndpointAcceptsOnlyLogin(t *testing.T) {
	data, err := Encode(CommandUserGet{ID: testID})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeLogin(data); !errors.IsCode(err, errors.CodeProtocolError) {
		t.Fatalf("err = %v", err)
	}

	data, err = Encode(CommandLogin{User: "someone", Password: "pw", Metadata: map[string]string{"host": "h"}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	login, err := DecodeLogin(data)
	if err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if login.User != "someone" || login.Password != "pw" || login.Metadata["host"] != "h" {
		t.Fatalf("login = %#v", login)
	}
}

func TestCommandIsNotAResponse(t *testing.T) {
	data, err := Encode(CommandUserGet{ID: testID})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, err = DecodeResponse(data)
	var classified *errors.Error
	if !stderrors.As(err, &classified) || classified.Code != errors.CodeProtocolError {
		t.Fatalf("err = %v", err)
	}
}

func TestOptionalDistinguishesAbsentFromEmpty(t *testing.T) {
	empty := ""
	m := CommandUserUpdate{ID: testID, RealName: &empty}

	decoded := roundTripCommand(t, m).(CommandUserUpdate)
	if decoded.RealName == nil || *decoded.RealName != "" {
		t.Fatalf("present empty string decoded as %v", decoded.RealName)
	}
	if decoded.Name != nil {
		t.Fatal("absent field decoded as present")
	}
}

func TestOptionalRejectsExcessArity(t *testing.T) {
	body, err := encMode.Marshal(wireCommandUserUpdate{
		ID:   testID.String(),
		Name: []string{"a", "b"},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	data, err := encMode.Marshal(envelope{Tag: tagCommandUserUpdate, Body: body})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	if _, err := DecodeCommand(data); !errors.IsCode(err, errors.CodeProtocolError) {
		t.Fatalf("err = %v", err)
	}
}

func TestPermissionSetRoundTripOrderIndependent(t *testing.T) {
	perms, err := permissionsFromWire([]string{"AUDIT_READ", "USER_READ", "ADMIN_BAN"})
	if err != nil {
		t.Fatalf("from wire: %v", err)
	}
	want := domain.NewPermissionSet(domain.PermissionUserRead, domain.PermissionAdminBan, domain.PermissionAuditRead)
	if perms != want {
		t.Fatalf("set = %v", perms.Slice())
	}

	names := permissionsToWire(perms)
	wantNames := []string{"USER_READ", "ADMIN_BAN", "AUDIT_READ"}
	if !reflect.DeepEqual(names, wantNames) {
		t.Fatalf("names = %v", names)
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := DecodeCommand([]byte{0xff, 0x00, 0x13}); !errors.IsCode(err, errors.CodeProtocolError) {
		t.Fatalf("err = %v", err)
	}
	if _, err := DecodeResponse(nil); !errors.IsCode(err, errors.CodeProtocolError) {
		t.Fatalf("err = %v", err)
	}
}
