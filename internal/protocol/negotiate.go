package protocol

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/silvermint/idserver/internal/errors"
)

// maxDocumentSize bounds the protocols document read.
const maxDocumentSize = 1 << 20

// Negotiate fetches the server's protocols document from base and picks the
// highest major version both sides support. It returns the chosen descriptor
// and its endpoint resolved against base. Negotiation runs once per fresh
// connection; callers cache the result for the connection's lifetime.
func Negotiate(ctx context.Context, client *http.Client, base *url.URL, supported []uint32) (Descriptor, *url.URL, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return Descriptor{}, nil, errors.Wrap(errors.CodeIOError, "build protocols request", err)
	}
	req.Header.Set("Accept", ContentType)

	resp, err := client.Do(req)
	if err != nil {
		return Descriptor{}, nil, errors.Wrap(errors.CodeIOError, "fetch protocols document", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return Descriptor{}, nil, errors.New(errors.CodeIOError,
			fmt.Sprintf("fetch protocols document: server returned status %d", resp.StatusCode))
	}
	if err := checkContentType(resp.Header.Get("Content-Type")); err != nil {
		return Descriptor{}, nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return Descriptor{}, nil, errors.Wrap(errors.CodeIOError, "read protocols document", err)
	}
	doc, err := DecodeDocument(data)
	if err != nil {
		return Descriptor{}, nil, err
	}

	clientSet := make(map[uint32]bool, len(supported))
	for _, major := range supported {
		clientSet[major] = true
	}

	var candidates []Descriptor
	var serverMajors []uint32
	for _, d := range doc.Protocols {
		if d.ID != ProductID {
			continue
		}
		serverMajors = append(serverMajors, d.Major)
		if clientSet[d.Major] {
			candidates = append(candidates, d)
		}
	}

	if len(candidates) == 0 {
		return Descriptor{}, nil, errors.New(errors.CodeProtocolError,
			fmt.Sprintf("no mutually supported protocol version: server supports %s, client supports %s",
				formatMajors(serverMajors), formatMajors(supported)))
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Major != candidates[j].Major {
			return candidates[i].Major > candidates[j].Major
		}
		return candidates[i].Minor > candidates[j].Minor
	})
	chosen := candidates[0]

	endpoint, err := url.Parse(chosen.Endpoint)
	if err != nil {
		return Descriptor{}, nil, errors.Wrap(errors.CodeProtocolError,
			fmt.Sprintf("malformed endpoint path %q", chosen.Endpoint), err)
	}
	return chosen, base.ResolveReference(endpoint), nil
}

// checkContentType verifies a response carries the silvermint content type.
func checkContentType(header string) error {
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil || mediaType != ContentType {
		return errors.New(errors.CodeProtocolError,
			fmt.Sprintf("unexpected content type %q, want %q", header, ContentType))
	}
	return nil
}

// CheckResponseContentType exposes the content-type check to the client's
// command path.
func CheckResponseContentType(header string) error {
	return checkContentType(header)
}

func formatMajors(majors []uint32) string {
	if len(majors) == 0 {
		return "(none)"
	}
	sorted := append([]uint32(nil), majors...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, 0, len(sorted))
	for _, m := range sorted {
		parts = append(parts, fmt.Sprintf("v%d", m))
	}
	return strings.Join(parts, ", ")
}
