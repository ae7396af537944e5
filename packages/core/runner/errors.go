package runner

import "fmt"

// Error codes of project configuration failures. They are raised before
// any request is sent.
const (
	CodeEnvNotFound    = "EENVNOTFOUND"
	CodeFolderNotFound = "EFOLDERNOTFOUND"
	CodeEnvRead        = "EENVREAD"
)

// Error is a configuration error with a machine readable code
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
