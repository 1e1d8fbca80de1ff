package cipher

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ytget/ytstreams/errs"
)

// Error codes
const (
	ErrCodePlayerJSNotFound   = "PLAYER_JS_NOT_FOUND"
	ErrCodePlayerJSDownload   = "PLAYER_JS_DOWNLOAD_FAILED"
	ErrCodePlayerJSTimeout    = "PLAYER_JS_TIMEOUT"
	ErrCodeSignatureDecipher  = "SIGNATURE_DECIPHER_FAILED"
	ErrCodeSignatureInvalid   = "SIGNATURE_INVALID"
	ErrCodeNTransform         = "N_TRANSFORM_FAILED"
	ErrCodeJSExecutionFailed  = "JS_EXECUTION_FAILED"
	ErrCodeJSParsingFailed    = "JS_PARSING_FAILED"
	ErrCodeRegexParsingFailed = "REGEX_PARSING_FAILED"
)

// Error represents a structured error with code and details.
// Every Error matches errs.ErrCipherFailed.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap ties every cipher error to errs.ErrCipherFailed.
func (e *Error) Unwrap() error {
	return errs.ErrCipherFailed
}

// MarshalJSON implements json.Marshaler
func (e *Error) MarshalJSON() ([]byte, error) {
	type Alias Error
	return json.Marshal(&struct {
		*Alias
		Error string `json:"error"`
	}{
		Alias: (*Alias)(e),
		Error: e.Error(),
	})
}

// NewError creates a new Error with the given code and message
func NewError(code string, message string, details ...any) *Error {
	e := &Error{
		Code:    code,
		Message: message,
	}
	if len(details) > 0 {
		e.Details = details[0]
	}
	return e
}

func codeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsTimeout returns true if the player script download timed out
func IsTimeout(err error) bool {
	return codeOf(err) == ErrCodePlayerJSTimeout
}

// IsNotFound returns true if no player script reference was available
func IsNotFound(err error) bool {
	return codeOf(err) == ErrCodePlayerJSNotFound
}

// IsInvalid returns true if the signature cipher could not be parsed
func IsInvalid(err error) bool {
	return codeOf(err) == ErrCodeSignatureInvalid
}

// IsJSError returns true if the error is a JavaScript execution error
func IsJSError(err error) bool {
	code := codeOf(err)
	return code == ErrCodeJSExecutionFailed || code == ErrCodeJSParsingFailed
}

// IsRegexError returns true if the error is a regex parsing error
func IsRegexError(err error) bool {
	return codeOf(err) == ErrCodeRegexParsingFailed
}
