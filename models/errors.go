package models

import "errors"

// Error taxonomy shared by the storage layer, the feed engine and the HTTP
// layer. Callers classify with errors.Is; details travel in the wrapping
// message.
var (
	// ErrFeedNotFound covers a missing feed and, on the public read path,
	// an inactive one. The two cases are deliberately indistinguishable to
	// skeleton consumers.
	ErrFeedNotFound = errors.New("feed not found")

	// ErrPostNotFound is reported when a delete matched zero rows.
	ErrPostNotFound = errors.New("post not found")

	// ErrFeedExists is reported on duplicate feed registration.
	ErrFeedExists = errors.New("feed already exists")

	// ErrPostExists is the storage-level uniqueness violation on
	// (feed, cid, indexedAt). The engine downgrades it to a success
	// response for idempotent retry semantics.
	ErrPostExists = errors.New("post already exists")

	// ErrInvalidLanguage is a language normalization or validation failure.
	ErrInvalidLanguage = errors.New("invalid language code")

	// ErrInvalidReason is a malformed reason tagged value.
	ErrInvalidReason = errors.New("invalid reason")

	// ErrMalformedCursor is an unparseable pagination token.
	ErrMalformedCursor = errors.New("malformed cursor")

	// ErrInvalidArgument is a semantically invalid request, e.g. a feed
	// update naming no fields or a negative retention count.
	ErrInvalidArgument = errors.New("invalid argument")
)
