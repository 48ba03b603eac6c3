// Package errs defines the small, closed result-code taxonomy the placement
// layer surfaces to callers, per the spec's error handling design: broken
// paths are silently dropped, transient I/O is upgraded to a retriable
// network error, missing objects are reported distinctly from I/O failure,
// and programmer errors (duplicate add, unknown unplug) never escape.
package errs

import "fmt"

// Code is a result code consumed by callers of the placement layer.
type Code int

const (
	// Success indicates the operation completed normally.
	Success Code = iota
	// NoObject indicates the object does not exist on any surviving disk.
	NoObject
	// EIO indicates a hard, non-retriable I/O failure (e.g. no disks left).
	EIO
	// NetworkError is returned by HandleEIO to force the caller to retry
	// against a (soon to be) rebuilt ring.
	NetworkError
)

func (c Code) String() string {
	switch c {
	case Success:
		return "SUCCESS"
	case NoObject:
		return "NO_OBJECT"
	case EIO:
		return "EIO"
	case NetworkError:
		return "NETWORK_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Error wraps a Code with the operation and path that produced it.
type Error struct {
	Code Code
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Code, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Op, e.Code, e.Path)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for the given code.
func New(code Code, op, path string, cause error) *Error {
	return &Error{Code: code, Op: op, Path: path, Err: cause}
}

// CodeOf extracts the Code carried by err, defaulting to EIO for any
// unrecognized error — local I/O failures convert to high-level result codes
// at the component boundary, never propagating raw OS errors upward.
func CodeOf(err error) Code {
	if err == nil {
		return Success
	}
	var e *Error
	if as(err, &e) {
		return e.Code
	}
	return EIO
}

func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
