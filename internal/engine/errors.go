package engine

import "errors"

var (
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrAlreadyInitialized = errors.New("missions already initialized")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidTemplates   = errors.New("invalid mission templates")
)
