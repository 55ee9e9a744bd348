// Package capidxerrors defines the sentinel error kinds shared by every
// layer of the caption index: codec, lexicon, document table, shard
// builder, merger and query engine.
package capidxerrors

import "errors"

var (
	// ErrUnknownToken is returned when a queried token is not present in
	// the lexicon at all.
	ErrUnknownToken = errors.New("unknown token")

	// ErrOutOfRange is returned when an id falls outside [0, size).
	ErrOutOfRange = errors.New("id out of range")

	// ErrMalformedInput is returned when a document cannot be parsed. The
	// caller is expected to skip the document and continue.
	ErrMalformedInput = errors.New("malformed input document")

	// ErrEncodingOverflow is returned when a value exceeds its codec
	// width. Fatal during build: the corpus needs wider codec parameters.
	ErrEncodingOverflow = errors.New("value exceeds codec width")

	// ErrIntegrity is returned when the merger detects a duplicate
	// (token, doc_id) pair across shards, or an empty posting list where
	// a non-empty one is required.
	ErrIntegrity = errors.New("index integrity violation")

	// ErrIndexClosed is returned when a query is attempted on a closed
	// reader.
	ErrIndexClosed = errors.New("operation on closed index")
)
