// Package protocol defines the version-negotiation surface: the descriptor
// document a server publishes at its base URI and the client-side selection
// of the highest mutually supported major version.
package protocol

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/silvermint/idserver/internal/errors"
)

// ContentType is the single binary content type for every silvermint
// message family. Any other content type on a response is a protocol error.
const ContentType = "application/silvermint+cbor"

// ProductID identifies the protocol family inside descriptor documents.
const ProductID = "silvermint"

// SessionCookie names the cookie that carries the opaque session token
// between login and subsequent commands.
const SessionCookie = "silvermint_session"

// Descriptor advertises one supported protocol version.
type Descriptor struct {
	// ID is the protocol family identifier.
	ID string
	// Major is the protocol major version; each major version is a closed,
	// independently maintained wire mapping.
	Major uint32
	// Minor is the protocol minor version.
	Minor uint32
	// Endpoint is the path of the version's API root, resolved against the
	// server base URI.
	Endpoint string
}

// Document is the set of descriptors a server publishes at its base URI.
type Document struct {
	Protocols []Descriptor
}

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
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// EncodeDocument serializes a protocols document.
func EncodeDocument(d Document) ([]byte, error) {
	data, err := encMode.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode protocols document: %w", err)
	}
	return data, nil
}

// DecodeDocument parses a protocols document, validating descriptors.
func DecodeDocument(data []byte) (Document, error) {
	var d Document
	if err := decMode.Unmarshal(data, &d); err != nil {
		return Document{}, errors.Wrap(errors.CodeProtocolError, "malformed protocols document", err)
	}
	for _, p := range d.Protocols {
		if p.ID == "" {
			return Document{}, errors.New(errors.CodeProtocolError, "protocols document: descriptor without an id")
		}
		if p.Endpoint == "" {
			return Document{}, errors.New(errors.CodeProtocolError, "protocols document: descriptor without an endpoint")
		}
	}
	return d, nil
}
