package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/silvermint/idserver/internal/domain"
	"github.com/silvermint/idserver/internal/errors"
	"github.com/silvermint/idserver/internal/protocol"
	"github.com/silvermint/idserver/internal/protocol/cb1"
)

// fakeServer speaks just enough of the protocol to exercise the client state
// machine, with fault injection for the retry paths.
type fakeServer struct {
	t *testing.T

	mu            sync.Mutex
	documentGets  int
	logins        int
	commands      int
	authFailures  int  // answer this many commands with AUTHENTICATION_ERROR
	rejectLogins  bool // answer every login with AUTHENTICATION_ERROR
	wrongMimeOnce bool // answer the next command with a JSON content type

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

const fakePassword = "correct-horse"

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", f.handleDocument)
	mux.HandleFunc("/v1/login", f.handleLogin)
	mux.HandleFunc("/v1/command", f.handleCommand)
	return mux
}

func (f *fakeServer) write(w http.ResponseWriter, status int, m cb1.Message) {
	data, err := cb1.Encode(m)
	if err != nil {
		f.t.Errorf("fake encode: %v", err)
		return
	}
	w.Header().Set("Content-Type", protocol.ContentType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (f *fakeServer) writeError(w http.ResponseWriter, code errors.Code, message string) {
	f.write(w, code.HTTPStatus(), cb1.ResponseError{
		RequestID: uuid.New(),
		Code:      code,
		Message:   message,
		Blame:     code.Blame(),
	})
}

func (f *fakeServer) handleDocument(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.documentGets++
	f.mu.Unlock()

	data, err := protocol.EncodeDocument(protocol.Document{
		Protocols: []protocol.Descriptor{
			{ID: protocol.ProductID, Major: 1, Minor: 0, Endpoint: "/v1"},
		},
	})
	if err != nil {
		f.t.Errorf("fake document: %v", err)
		return
	}
	w.Header().Set("Content-Type", protocol.ContentType)
	_, _ = w.Write(data)
}

func (f *fakeServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.logins++
	reject := f.rejectLogins
	f.mu.Unlock()

	body, _ := io.ReadAll(r.Body)
	cmd, err := cb1.DecodeLogin(body)
	if err != nil {
		f.writeError(w, errors.CodeProtocolError, err.Error())
		return
	}
	if reject || cmd.Password != fakePassword {
		f.writeError(w, errors.CodeAuthenticationError, "invalid credentials")
		return
	}

	http.SetCookie(w, &http.Cookie{Name: protocol.SessionCookie, Value: "fake-token"})
	user := domain.User{ID: uuid.New(), Name: cmd.User, Emails: []string{cmd.User + "@example.com"}}
	f.write(w, http.StatusOK, cb1.ResponseLogin{RequestID: uuid.New(), User: &user})
}

func (f *fakeServer) handleCommand(w http.ResponseWriter, r *http.Request) {
	if current := f.inflight.Add(1); current > f.maxInflight.Load() {
		f.maxInflight.Store(current)
	}
	defer f.inflight.Add(-1)

	f.mu.Lock()
	f.commands++
	failAuth := f.authFailures > 0
	if failAuth {
		f.authFailures--
	}
	wrongMime := f.wrongMimeOnce
	f.wrongMimeOnce = false
	f.mu.Unlock()

	if wrongMime {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
		return
	}
	if failAuth {
		f.writeError(w, errors.CodeAuthenticationError, "session expired")
		return
	}

	body, _ := io.ReadAll(r.Body)
	cmd, err := cb1.DecodeCommand(body)
	if err != nil {
		f.writeError(w, errors.CodeProtocolError, err.Error())
		return
	}
	switch cmd.(type) {
	case cb1.CommandUserSelf:
		user := domain.User{ID: uuid.New(), Name: "self", Emails: []string{"self@example.com"}}
		f.write(w, http.StatusOK, cb1.ResponseUser{RequestID: uuid.New(), User: user})
	default:
		f.write(w, http.StatusOK, cb1.ResponseOK{RequestID: uuid.New()})
	}
}

func newFakeClient(t *testing.T) (*Client, *fakeServer) {
	t.Helper()
	fake := &fakeServer{t: t}
	ts := httptest.NewServer(fake.handler())
	t.Cleanup(ts.Close)

	c, err := New(ts.URL, ts.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, fake
}

func TestLoginAndExecute(t *testing.T) {
	c, fake := newFakeClient(t)
	ctx := context.Background()

	if c.State() != StateDisconnected {
		t.Fatalf("initial state = %v", c.State())
	}
	resp, err := c.Login(ctx, "wren", fakePassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.User == nil || resp.User.Name != "wren" {
		t.Fatalf("login response = %+v", resp)
	}
	if c.State() != StateConnected {
		t.Fatalf("state after login = %v", c.State())
	}

	self, err := Expect[cb1.ResponseUser](c.Execute(ctx, cb1.CommandUserSelf{}))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if self.User.Name != "self" {
		t.Errorf("self = %+v", self.User)
	}

	// A second login reuses the negotiated endpoint.
	if _, err := c.Login(ctx, "wren", fakePassword); err != nil {
		t.Fatalf("relogin: %v", err)
	}
	if fake.documentGets != 1 {
		t.Errorf("negotiated %d times, want 1", fake.documentGets)
	}
}

func TestLoginFailure(t *testing.T) {
	c, _ := newFakeClient(t)

	_, err := c.Login(context.Background(), "wren", "wrong")
	if !errors.IsCode(err, errors.CodeAuthenticationError) {
		t.Fatalf("login error = %v", err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("state after failed login = %v", c.State())
	}
}

func TestExecuteRequiresLogin(t *testing.T) {
	c, _ := newFakeClient(t)

	_, err := c.Execute(context.Background(), cb1.CommandUserSelf{})
	if !errors.IsCode(err, errors.CodeNotLoggedIn) {
		t.Fatalf("error = %v", err)
	}
}

func TestExecuteRejectsLoginCommand(t *testing.T) {
	c, _ := newFakeClient(t)
	ctx := context.Background()
	if _, err := c.Login(ctx, "wren", fakePassword); err != nil {
		t.Fatalf("login: %v", err)
	}

	_, err := c.Execute(ctx, cb1.CommandLogin{User: "wren", Password: fakePassword})
	if !errors.IsCode(err, errors.CodeProtocolError) {
		t.Fatalf("error = %v", err)
	}
}

func TestTransparentReloginRetry(t *testing.T) {
	c, fake := newFakeClient(t)
	ctx := context.Background()
	if _, err := c.Login(ctx, "wren", fakePassword); err != nil {
		t.Fatalf("login: %v", err)
	}

	fake.authFailures = 1
	if _, err := Expect[cb1.ResponseUser](c.Execute(ctx, cb1.CommandUserSelf{})); err != nil {
		t.Fatalf("execute with expired session: %v", err)
	}
	if fake.logins != 2 {
		t.Errorf("logins = %d, want 2 (original + transparent retry)", fake.logins)
	}
	if fake.commands != 2 {
		t.Errorf("commands = %d, want 2 (failed + resent)", fake.commands)
	}
}

func TestRetryIsBounded(t *testing.T) {
	c, fake := newFakeClient(t)
	ctx := context.Background()
	if _, err := c.Login(ctx, "wren", fakePassword); err != nil {
		t.Fatalf("login: %v", err)
	}

	// Both the first attempt and the post-relogin resend fail with an
	// authentication error; the second one must surface, not loop.
	fake.authFailures = 2
	_, err := c.Execute(ctx, cb1.CommandUserSelf{})
	if !errors.IsCode(err, errors.CodeAuthenticationError) {
		t.Fatalf("error = %v", err)
	}
	if fake.logins != 2 {
		t.Errorf("logins = %d, want 2", fake.logins)
	}
	if fake.commands != 2 {
		t.Errorf("commands = %d, want 2", fake.commands)
	}
}

func TestRetryStopsWhenReloginFails(t *testing.T) {
	c, fake := newFakeClient(t)
	ctx := context.Background()
	if _, err := c.Login(ctx, "wren", fakePassword); err != nil {
		t.Fatalf("login: %v", err)
	}

	fake.authFailures = 1
	fake.rejectLogins = true
	_, err := c.Execute(ctx, cb1.CommandUserSelf{})
	if !errors.IsCode(err, errors.CodeAuthenticationError) {
		t.Fatalf("error = %v", err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("state = %v", c.State())
	}
	if fake.commands != 1 {
		t.Errorf("commands = %d, want 1 (no resend after failed relogin)", fake.commands)
	}
}

func TestWrongContentType(t *testing.T) {
	c, fake := newFakeClient(t)
	ctx := context.Background()
	if _, err := c.Login(ctx, "wren", fakePassword); err != nil {
		t.Fatalf("login: %v", err)
	}

	fake.wrongMimeOnce = true
	_, err := c.Execute(ctx, cb1.CommandUserSelf{})
	if !errors.IsCode(err, errors.CodeProtocolError) {
		t.Fatalf("error = %v", err)
	}
}

func TestExpectTypeMismatch(t *testing.T) {
	c, _ := newFakeClient(t)
	ctx := context.Background()
	if _, err := c.Login(ctx, "wren", fakePassword); err != nil {
		t.Fatalf("login: %v", err)
	}

	// The fake answers CommandUserGet with ResponseOK.
	_, err := Expect[cb1.ResponseUser](c.Execute(ctx, cb1.CommandUserGet{ID: uuid.New()}))
	if !errors.IsCode(err, errors.CodeProtocolError) {
		t.Fatalf("error = %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c, _ := newFakeClient(t)
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("state = %v", c.State())
	}
}

func TestAsyncSerializesCalls(t *testing.T) {
	c, fake := newFakeClient(t)
	a := NewAsync(c)
	defer a.Close()

	ctx := context.Background()
	if _, err := a.Login(ctx, "wren", fakePassword); err != nil {
		t.Fatalf("login: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.Execute(ctx, cb1.CommandUserSelf{}); err != nil {
				t.Errorf("execute: %v", err)
			}
		}()
	}
	wg.Wait()

	if observed := fake.maxInflight.Load(); observed > 1 {
		t.Errorf("observed %d concurrent requests through one client", observed)
	}
	if fake.commands != 16 {
		t.Errorf("commands = %d, want 16", fake.commands)
	}
}

func TestAsyncCloseIsIdempotent(t *testing.T) {
	c, _ := newFakeClient(t)
	a := NewAsync(c)

	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := a.Execute(context.Background(), cb1.CommandUserSelf{}); err == nil {
		t.Fatal("execute succeeded after close")
	}
}

func TestNegotiationNoCommonVersion(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		data, err := protocol.EncodeDocument(protocol.Document{
			Protocols: []protocol.Descriptor{
				{ID: protocol.ProductID, Major: 9, Minor: 0, Endpoint: "/v9"},
			},
		})
		if err != nil {
			t.Errorf("encode document: %v", err)
			return
		}
		w.Header().Set("Content-Type", protocol.ContentType)
		_, _ = w.Write(data)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	c, err := New(ts.URL, ts.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = c.Login(context.Background(), "wren", fakePassword)
	if !errors.IsCode(err, errors.CodeProtocolError) {
		t.Fatalf("error = %v", err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("state = %v", c.State())
	}
}
