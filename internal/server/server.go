// Package server exposes the identity service over HTTP. The base URI
// publishes a protocol descriptor document; each protocol version mounts its
// login and command endpoints under its own path prefix.
package server

import (
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/silvermint/idserver/internal/audit"
	"github.com/silvermint/idserver/internal/errors"
	"github.com/silvermint/idserver/internal/protocol"
	"github.com/silvermint/idserver/internal/protocol/cb1"
	"github.com/silvermint/idserver/internal/session"
	"github.com/silvermint/idserver/internal/storage"
)

// SessionCookie names the cookie carrying the opaque session token.
const SessionCookie = protocol.SessionCookie

// maxRequestSize bounds command bodies. Every v1 command fits comfortably.
const maxRequestSize = 1 << 20

// Server executes protocol commands against the identity store.
type Server struct {
	db       storage.DB
	sessions *session.Store
	searches *searchRegistry
	recorder *audit.Recorder
	logger   *log.Logger
	tracer   trace.Tracer

	now   func() time.Time
	newID func() uuid.UUID
}

// Options configures optional server collaborators. Zero values select
// production defaults.
type Options struct {
	// SessionTTL drops sessions idle longer than this. Zero disables expiry.
	SessionTTL time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
	// NewID overrides request and principal id generation, for tests.
	NewID func() uuid.UUID
	// Logger receives lifecycle and failure logs.
	Logger *log.Logger
}

// New creates a server over the given store.
func New(db storage.DB, opts Options) *Server {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.New
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		db:       db,
		sessions: session.NewStore(opts.SessionTTL, now),
		searches: newSearchRegistry(),
		recorder: audit.NewRecorder(now),
		logger:   logger,
		tracer:   otel.Tracer("idserver/server"),
		now:      now,
		newID:    newID,
	}
}

// Router mounts the negotiation document, the protocol v1 endpoints, and the
// health probe.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleDocument)
	r.Get("/health", s.handleHealth)
	r.Post("/v1/login", s.handleLogin)
	r.Post("/v1/command", s.handleCommand)

	return r
}

// document lists every protocol version this server speaks.
var document = protocol.Document{
	Protocols: []protocol.Descriptor{
		{ID: protocol.ProductID, Major: 1, Minor: 0, Endpoint: "/v1"},
	},
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	data, err := protocol.EncodeDocument(document)
	if err != nil {
		s.logger.Printf("encode protocol document: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", protocol.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		http.Error(w, "store unreachable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// readBody drains a request body up to the size cap.
func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize+1))
	if err != nil {
		return nil, errors.Wrap(errors.CodeIOError, "read request body", err)
	}
	if len(data) > maxRequestSize {
		return nil, errors.New(errors.CodeProtocolError, "request body too large")
	}
	return data, nil
}

// writeMessage encodes a response message with the protocol content type.
func (s *Server) writeMessage(w http.ResponseWriter, status int, m cb1.Message) {
	data, err := cb1.Encode(m)
	if err != nil {
		s.logger.Printf("encode response: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", protocol.ContentType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError classifies err and sends it as a ResponseError. Unclassified
// errors report as IO_ERROR without leaking internals.
func (s *Server) writeError(w http.ResponseWriter, requestID uuid.UUID, err error) {
	classified := errors.As(err)
	if classified.Blame() == errors.BlameServer {
		s.logger.Printf("request %s failed: %v", requestID, err)
	}
	resp := cb1.ResponseError{
		RequestID:  requestID,
		Code:       classified.Code,
		Message:    classified.Message,
		Attributes: classified.Attributes,
		Blame:      classified.Blame(),
	}
	if classified.Remediation != "" {
		hint := classified.Remediation
		resp.Remediation = &hint
	}
	s.writeMessage(w, classified.HTTPStatus(), resp)
}
