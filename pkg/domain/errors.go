package domain

import "errors"

var (
	// ErrBlankMessage indicates a blank or whitespace-only message text
	ErrBlankMessage = errors.New("message is blank")
	// ErrEngineClosed indicates the engine has been closed
	ErrEngineClosed = errors.New("engine is closed")
)
