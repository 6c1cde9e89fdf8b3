package redisession

import "errors"

var (
	// ErrRedisUnavailable wraps transport-level Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrNotOpened is returned when a lifecycle method runs before Open.
	ErrNotOpened = errors.New("session handler not opened")
	// ErrAlreadyOpened is returned when Open is called twice on one handler.
	ErrAlreadyOpened = errors.New("session handler already opened")
	// ErrHandlerClosed is returned when a lifecycle method runs after Close.
	ErrHandlerClosed = errors.New("session handler closed")
)
