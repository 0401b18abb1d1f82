// Package cb1 implements major version 1 of the silvermint wire protocol.
//
// Messages travel as CBOR arrays of [tag, body]. The message set is closed:
// encoding switches exhaustively over the Go types and decoding resolves tags
// against a closed table, so an unrecognized tag is a protocol error rather
// than a default value. Each protocol major version is an independent
// mapping; cb1 makes no attempt at cross-version compatibility.
//
// Decode performs all structural validation: timestamp field ranges, optional
// field arity, enum tags, and the at-least-one-email invariant. A login
// command is only decodable at the login endpoint; DecodeCommand rejects it
// structurally.
package cb1
