package config

import (
	"errors"
	"fmt"
)

// ErrMissingCredentials is reported when neither OPENAI_API_KEY nor
// GOOGLE_API_KEY is available.
var ErrMissingCredentials = errors.New("no LLM credentials configured")

// Error is a configuration error: a setting is missing, malformed, or out of
// range. It is always reported before any browser or model work begins.
type Error struct {
	// Key names the setting, usually its environment variable
	Key string
	// Msg is the human readable description
	Msg string
	// Err is the underlying cause, if any
	Err error
}

func newError(key, msg string, cause error) *Error {
	return &Error{Key: key, Msg: msg, Err: cause}
}

func (e *Error) Error() string {
	if e.Msg == "" && e.Err != nil {
		return fmt.Sprintf("configuration error (%s): %v", e.Key, e.Err)
	}
	return "configuration error: " + e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}
