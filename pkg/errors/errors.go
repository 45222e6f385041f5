// Package errors provides the structured error vocabulary for blueprintfs.
// Every failure surfaced by the overlay is one of five codes; callers branch
// on the code, bridges translate it to an errno.
package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"
)

// Code identifies the kind of failure.
type Code string

const (
	// CodeInvalidPath marks paths rejected before any disk access:
	// traversal segments, absolute segments, disallowed hidden names.
	CodeInvalidPath Code = "INVALID_PATH"

	// CodeNotFound marks paths with neither physical nor virtual existence.
	CodeNotFound Code = "NOT_FOUND"

	// CodeAlreadyExists marks a non-racing duplicate create against a
	// genuinely materialized target when the caller asked for exclusivity.
	CodeAlreadyExists Code = "ALREADY_EXISTS"

	// CodePermissionDenied marks an oracle veto or a write into a
	// read-only zone (root, project list, viewport, virtual removal).
	CodePermissionDenied Code = "PERMISSION_DENIED"

	// CodeIOFailure marks an underlying physical operation that failed
	// for a reason other than existence: disk full, permission bits,
	// device errors.
	CodeIOFailure Code = "IO_FAILURE"
)

// Error is the structured error carried through the overlay. Op names the
// operation that failed, Path the overlay-relative path it was applied to.
type Error struct {
	Code Code
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Err != nil:
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Code, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Code)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by code so errors.Is works across wrapping.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates an Error without an underlying cause.
func New(code Code, op, path string) *Error {
	return &Error{Code: code, Op: op, Path: path}
}

// Wrap creates an Error around an underlying cause.
func Wrap(code Code, op, path string, err error) *Error {
	return &Error{Code: code, Op: op, Path: path, Err: err}
}

// InvalidPath builds a CodeInvalidPath error with a reason.
func InvalidPath(op, path, reason string) *Error {
	return &Error{Code: CodeInvalidPath, Op: op, Path: path, Err: stderrors.New(reason)}
}

// NotFound builds a CodeNotFound error.
func NotFound(op, path string) *Error {
	return &Error{Code: CodeNotFound, Op: op, Path: path}
}

// AlreadyExists builds a CodeAlreadyExists error.
func AlreadyExists(op, path string) *Error {
	return &Error{Code: CodeAlreadyExists, Op: op, Path: path}
}

// PermissionDenied builds a CodePermissionDenied error with a reason.
func PermissionDenied(op, path, reason string) *Error {
	return &Error{Code: CodePermissionDenied, Op: op, Path: path, Err: stderrors.New(reason)}
}

// IOFailure builds a CodeIOFailure error around the physical cause.
func IOFailure(op, path string, err error) *Error {
	return &Error{Code: CodeIOFailure, Op: op, Path: path, Err: err}
}

// FromStore classifies an error returned by the physical store. Existence
// outcomes map to their taxonomy codes; everything else is an I/O failure
// that keeps the cause for errno passthrough.
func FromStore(op, path string, err error) *Error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, fs.ErrNotExist):
		return NotFound(op, path)
	case stderrors.Is(err, fs.ErrExist):
		return AlreadyExists(op, path)
	default:
		return IOFailure(op, path, err)
	}
}

// CodeOf extracts the taxonomy code from err, or "" when err is nil.
// Errors from outside the taxonomy report CodeIOFailure: no internal fault
// escapes the five-code vocabulary.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeIOFailure
}

// IsNotFound reports whether err carries CodeNotFound.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsInvalidPath reports whether err carries CodeInvalidPath.
func IsInvalidPath(err error) bool { return CodeOf(err) == CodeInvalidPath }

// IsAlreadyExists reports whether err carries CodeAlreadyExists.
func IsAlreadyExists(err error) bool { return CodeOf(err) == CodeAlreadyExists }

// IsPermissionDenied reports whether err carries CodePermissionDenied.
func IsPermissionDenied(err error) bool { return CodeOf(err) == CodePermissionDenied }

// ToErrno translates err into the errno reported to the kernel. I/O
// failures keep the wrapped errno when one is present (EACCES stays EACCES,
// ENOTEMPTY stays ENOTEMPTY); otherwise they become EIO.
func ToErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var e *Error
	if stderrors.As(err, &e) {
		switch e.Code {
		case CodeInvalidPath:
			return syscall.EINVAL
		case CodeNotFound:
			return syscall.ENOENT
		case CodeAlreadyExists:
			return syscall.EEXIST
		case CodePermissionDenied:
			return syscall.EACCES
		case CodeIOFailure:
			if errno, ok := underlyingErrno(e.Err); ok {
				return errno
			}
			return syscall.EIO
		}
	}
	if errno, ok := underlyingErrno(err); ok {
		return errno
	}
	switch {
	case os.IsNotExist(err):
		return syscall.ENOENT
	case os.IsExist(err):
		return syscall.EEXIST
	case os.IsPermission(err):
		return syscall.EACCES
	default:
		return syscall.EIO
	}
}

func underlyingErrno(err error) (syscall.Errno, bool) {
	var errno syscall.Errno
	if stderrors.As(err, &errno) {
		return errno, true
	}
	return 0, false
}
