// Package apperrors provides chainable application errors that carry an HTTP
// status code and a base error for errors.Is matching.
package apperrors

// Error is the error type returned across package boundaries. Derivation
// methods (New, Msg, MsgErr, Err, Prefix, Suffix, SetStatusCode) return a new
// value and never modify the receiver, so package level sentinels can be
// shared safely between goroutines.
type Error interface {
	Error() string
	ErrorAll() string
	New(msg string) Error
	MsgErr(msg string, err ...error) Error
	Msg(msg string) Error
	Prefix(prefix string) Error
	Suffix(suffix string) Error
	Err(err ...error) Error
	Unwrap() []error
	Is(target error) bool
	SetExpandError(expand bool) Error
	SetStatusCode(code int) Error
	StatusCode() int
}
