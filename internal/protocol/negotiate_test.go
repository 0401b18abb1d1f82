package protocol

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/silvermint/idserver/internal/errors"
)

func serveDocument(t *testing.T, doc Document) *httptest.Server {
	t.Helper()
	data, err := EncodeDocument(doc)
	if err != nil {
		t.Fatalf("encode document: %v", err)
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", ContentType)
		_, _ = w.Write(data)
	}))
}

func baseURL(t *testing.T, srv *httptest.Server) *url.URL {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u
}

func TestNegotiatePicksHighestMutualVersion(t *testing.T) {
	srv := serveDocument(t, Document{Protocols: []Descriptor{
		{ID: ProductID, Major: 1, Minor: 3, Endpoint: "/v1"},
		{ID: ProductID, Major: 2, Minor: 0, Endpoint: "/v2"},
		{ID: ProductID, Major: 7, Minor: 1, Endpoint: "/v7"},
		{ID: "otherproduct", Major: 9, Minor: 0, Endpoint: "/other"},
	}})
	defer srv.Close()

	chosen, endpoint, err := Negotiate(context.Background(), srv.Client(), baseURL(t, srv), []uint32{1, 2})
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if chosen.Major != 2 {
		t.Fatalf("chose major %d", chosen.Major)
	}
	if got := endpoint.Path; got != "/v2" {
		t.Fatalf("endpoint path = %q", got)
	}
	if !strings.HasPrefix(endpoint.String(), srv.URL) {
		t.Fatalf("endpoint %q not resolved against base", endpoint)
	}
}

func TestNegotiateNoIntersectionListsBothSets(t *testing.T) {
	srv := serveDocument(t, Document{Protocols: []Descriptor{
		{ID: ProductID, Major: 3, Minor: 0, Endpoint: "/v3"},
		{ID: ProductID, Major: 4, Minor: 0, Endpoint: "/v4"},
	}})
	defer srv.Close()

	_, _, err := Negotiate(context.Background(), srv.Client(), baseURL(t, srv), []uint32{1, 2})
	if !errors.IsCode(err, errors.CodeProtocolError) {
		t.Fatalf("err = %v", err)
	}
	msg := err.Error()
	for _, want := range []string{"v1", "v2", "v3", "v4"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q does not enumerate %s", msg, want)
		}
	}
}

func TestNegotiateRejectsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, _, err := Negotiate(context.Background(), srv.Client(), baseURL(t, srv), []uint32{1})
	if !errors.IsCode(err, errors.CodeIOError) {
		t.Fatalf("err = %v", err)
	}
}

func TestNegotiateRejectsWrongContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	_, _, err := Negotiate(context.Background(), srv.Client(), baseURL(t, srv), []uint32{1})
	if !errors.IsCode(err, errors.CodeProtocolError) {
		t.Fatalf("err = %v", err)
	}
}

func TestNegotiateRejectsMalformedDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", ContentType)
		_, _ = w.Write([]byte{0xff, 0xff})
	}))
	defer srv.Close()

	_, _, err := Negotiate(context.Background(), srv.Client(), baseURL(t, srv), []uint32{1})
	if !errors.IsCode(err, errors.CodeProtocolError) {
		t.Fatalf("err = %v", err)
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	doc := Document{Protocols: []Descriptor{
		{ID: ProductID, Major: 1, Minor: 0, Endpoint: "/v1"},
	}}
	data, err := EncodeDocument(doc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := DecodeDocument(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(back.Protocols) != 1 || back.Protocols[0] != doc.Protocols[0] {
		t.Fatalf("document = %#v", back)
	}
}

func TestDecodeDocumentValidatesDescriptors(t *testing.T) {
	data, err := EncodeDocument(Document{Protocols: []Descriptor{{ID: "", Endpoint: "/v1"}}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeDocument(data); !errors.IsCode(err, errors.CodeProtocolError) {
		t.Fatalf("err = %v", err)
	}
}
