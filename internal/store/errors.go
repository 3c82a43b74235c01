package store

import "errors"

var (
	// ErrStoreUnavailable means the underlying database file could not be
	// opened or is corrupt. There is no point retrying.
	ErrStoreUnavailable = errors.New("store: unavailable")

	// ErrStoreBusy means the single write slot could not be acquired within
	// the configured wait. Callers may retry with backoff.
	ErrStoreBusy = errors.New("store: busy")

	// ErrUnknownEntity means a referenced user or chat row does not exist.
	// The caller must upsert the actor before saving messages for it.
	ErrUnknownEntity = errors.New("store: unknown entity")

	// ErrDuplicateMessage means a message with the same role already exists
	// for the interaction identifier.
	ErrDuplicateMessage = errors.New("store: duplicate message for interaction")

	// ErrDuplicateUsage means a token usage record already exists for the
	// interaction identifier. The prior record stands.
	ErrDuplicateUsage = errors.New("store: duplicate token usage")

	// ErrInvalidArgument means the caller passed bad input.
	ErrInvalidArgument = errors.New("store: invalid argument")
)
