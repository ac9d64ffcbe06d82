// Package xerr defines the tagged error kinds the core pipeline can
// surface once its input has already been validated by the upstream
// type checker and uniquifier (spec §7: the core assumes a well-formed
// input and only fails on a narrow set of conditions it alone can detect).
package xerr

import (
	"github.com/pkg/errors"
)

// Sentinel kinds. Callers match with errors.Is against these, never by
// string comparison.
var (
	// ErrUnsupportedArity: a call or syscall needs more argument
	// registers than the calling convention provides.
	ErrUnsupportedArity = errors.New("unsupported arity")

	// ErrUnreachable: an IR shape occurred that earlier passes should
	// have prevented. Always a programmer bug in an earlier pass, never
	// a property of the source program.
	ErrUnreachable = errors.New("unreachable IR shape")

	// ErrEncodingOverflow: a branch displacement does not fit in a
	// signed 32-bit relative offset.
	ErrEncodingOverflow = errors.New("encoding overflow")
)

// UnsupportedArity wraps ErrUnsupportedArity with the offending arity
// and the limit that was exceeded.
func UnsupportedArity(where string, arity, limit int) error {
	return errors.Wrapf(ErrUnsupportedArity, "%s: arity %d exceeds limit %d", where, arity, limit)
}

// Unreachable wraps ErrUnreachable with a description of the shape
// encountered, so a %+v print carries both the message and the stack
// of the pass that hit it.
func Unreachable(format string, args ...interface{}) error {
	return errors.Wrapf(ErrUnreachable, format, args...)
}

// EncodingOverflow wraps ErrEncodingOverflow with the computed
// displacement that did not fit.
func EncodingOverflow(label string, disp int64) error {
	return errors.Wrapf(ErrEncodingOverflow, "%s: displacement %d does not fit in int32", label, disp)
}
