// Package client implements the protocol client: version negotiation, login,
// and command execution with one transparent re-login on session expiry.
package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/silvermint/idserver/internal/errors"
	"github.com/silvermint/idserver/internal/protocol"
	"github.com/silvermint/idserver/internal/protocol/cb1"
)

// State tracks where the client is in its connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateAuthenticating
	StateConnected
)

// supportedMajors lists the protocol majors this client implements.
var supportedMajors = []uint32{1}

// maxResponseSize bounds response bodies, matching the server's own cap.
const maxResponseSize = 1 << 20

// Client is a synchronous protocol client. It is not safe for concurrent
// use; the async wrapper serializes callers onto one Client.
type Client struct {
	httpClient *http.Client
	base       *url.URL

	state    State
	endpoint *url.URL
	cookie   *http.Cookie

	// Credentials from the last successful login, kept for the transparent
	// re-login retry.
	user     string
	password string
}

// New creates a client for the server at base. A nil httpClient uses the
// default client.
func New(base string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, errors.Wrap(errors.CodeProtocolError, "invalid server address", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient, base: u, state: StateDisconnected}, nil
}

// State reports the client's current lifecycle state.
func (c *Client) State() State {
	return c.state
}

// Login negotiates a protocol version if needed, authenticates, and stores
// the session. Negotiation runs once per client and is cached across logins.
func (c *Client) Login(ctx context.Context, user, password string) (cb1.ResponseLogin, error) {
	c.state = StateAuthenticating

	if c.endpoint == nil {
		_, endpoint, err := protocol.Negotiate(ctx, c.httpClient, c.base, supportedMajors)
		if err != nil {
			c.state = StateDisconnected
			return cb1.ResponseLogin{}, err
		}
		c.endpoint = endpoint
	}

	resp, cookie, err := c.post(ctx, c.endpoint.JoinPath("login"), cb1.CommandLogin{User: user, Password: password})
	if err != nil {
		c.state = StateDisconnected
		return cb1.ResponseLogin{}, err
	}
	login, ok := resp.(cb1.ResponseLogin)
	if !ok {
		c.state = StateDisconnected
		return cb1.ResponseLogin{}, errors.New(errors.CodeProtocolError,
			"unexpected login response type")
	}
	if cookie == nil {
		c.state = StateDisconnected
		return cb1.ResponseLogin{}, errors.New(errors.CodeProtocolError,
			"login response carried no session")
	}

	c.cookie = cookie
	c.user = user
	c.password = password
	c.state = StateConnected
	return login, nil
}

// Execute sends one command. On AUTHENTICATION_ERROR it re-logs-in once with
// the stored credentials and resends the command; a second consecutive
// authentication failure surfaces to the caller. The context spans both
// attempts.
func (c *Client) Execute(ctx context.Context, cmd cb1.Message) (cb1.Message, error) {
	if _, ok := cmd.(cb1.CommandLogin); ok {
		return nil, errors.New(errors.CodeProtocolError, "use Login to authenticate")
	}
	if c.state != StateConnected {
		return nil, errors.New(errors.CodeNotLoggedIn, "not logged in")
	}

	resp, _, err := c.post(ctx, c.endpoint.JoinPath("command"), cmd)
	if !errors.IsCode(err, errors.CodeAuthenticationError) {
		return resp, err
	}

	// The session likely expired underneath us. Log in again and resend
	// the original command exactly once.
	if _, err := c.Login(ctx, c.user, c.password); err != nil {
		return nil, err
	}
	resp, _, err = c.post(ctx, c.endpoint.JoinPath("command"), cmd)
	return resp, err
}

// Close forgets the session and releases idle connections. Closing twice or
// while disconnected is a no-op.
func (c *Client) Close() error {
	c.state = StateDisconnected
	c.cookie = nil
	c.user = ""
	c.password = ""
	c.httpClient.CloseIdleConnections()
	return nil
}

// post sends one encoded message and decodes the reply. Error responses come
// back as classified errors, never as messages.
func (c *Client) post(ctx context.Context, endpoint *url.URL, m cb1.Message) (cb1.Message, *http.Cookie, error) {
	body, err := cb1.Encode(m)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, nil, errors.Wrap(errors.CodeIOError, "build request", err)
	}
	req.Header.Set("Content-Type", protocol.ContentType)
	req.Header.Set("Accept", protocol.ContentType)
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, errors.Wrap(errors.CodeIOError, "send request", err)
	}
	defer resp.Body.Close()

	if err := protocol.CheckResponseContentType(resp.Header.Get("Content-Type")); err != nil {
		return nil, nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, nil, errors.Wrap(errors.CodeIOError, "read response", err)
	}
	msg, err := cb1.DecodeResponse(data)
	if err != nil {
		return nil, nil, err
	}
	if respErr, ok := msg.(cb1.ResponseError); ok {
		return nil, nil, responseError(respErr)
	}

	var session *http.Cookie
	for _, cookie := range resp.Cookies() {
		if cookie.Name == protocol.SessionCookie {
			session = cookie
		}
	}
	return msg, session, nil
}

// responseError rehydrates a wire error into the shared error type so that
// callers can match codes with errors.IsCode on either side of the wire.
func responseError(r cb1.ResponseError) error {
	err := errors.New(r.Code, r.Message).WithAttributes(r.Attributes)
	if r.Remediation != nil {
		err = err.WithRemediation(*r.Remediation)
	}
	return err
}

// Expect asserts the concrete response type of an Execute result. A server
// answering with the wrong message type is a protocol violation.
func Expect[T cb1.Message](m cb1.Message, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	resp, ok := m.(T)
	if !ok {
		return zero, errors.New(errors.CodeProtocolError, "unexpected response type")
	}
	return resp, nil
}
