package presence

import "errors"

var (
	// ErrUnknownConnection marks an intent for a connection that is not
	// registered, usually because it raced with its own disconnect.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrDuplicateConnection is returned when a connection id is registered twice.
	ErrDuplicateConnection = errors.New("duplicate connection")

	ErrEmptyRoomName       = errors.New("empty room name")
	ErrEmptyMessageText    = errors.New("empty message text")
	ErrNotInRoom           = errors.New("connection is not in a room")
	ErrMissingRecipient    = errors.New("private message without recipient")
	ErrStorageAppendFailed = errors.New("storage append failed")
	ErrStorageReadFailed   = errors.New("storage read failed")
)
