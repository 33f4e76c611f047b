package apperrors

import (
	"errors"
)

var (
	ErrShutdown = errors.New("shutdown error")

	ErrInvalidEventPayload = errors.New("invalid event payload")
	ErrUnknownEventType    = errors.New("unknown event type")
	ErrEventRejected       = errors.New("event rejected by consumer")

	ErrSamePeer         = errors.New("peer must differ from user")
	ErrEmptyUserID      = errors.New("user id is empty")
	ErrEmptyMessageText = errors.New("message text is empty")
)
