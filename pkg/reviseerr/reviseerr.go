// Package reviseerr defines the closed error taxonomy the tool exposes to
// its CLI layer for exit-code selection. Everything else in the module
// uses plain wrapped errors; these markers exist only where a caller at
// the boundary needs to tell the error kinds apart (§7).
package reviseerr

import "fmt"

// Kind is one of the error categories named in §7, plus Misuse for the
// CLI-argument validation errors named in §6 (exit code 2, distinct from
// the generic-failure exit code 1 that every other kind except VcsFailed,
// which maps to 128, maps to).
type Kind string

const (
	CorruptObject      Kind = "CorruptObject"
	MissingObject      Kind = "MissingObject"
	AmbiguousOID       Kind = "AmbiguousOid"
	BadRevision        Kind = "BadRevision"
	MergeInRange       Kind = "MergeInRange"
	UnresolvedConflict Kind = "UnresolvedConflict"
	UserAbort          Kind = "UserAbort"
	VcsFailed          Kind = "VcsFailed"
	RefUpdateFailed    Kind = "RefUpdateFailed"
	TodoInvalid        Kind = "TodoInvalid"
	Misuse             Kind = "Misuse"
)

// Error wraps an underlying cause with one of the Kind markers so the CLI
// can select an exit code without string-matching messages.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an Error of the given kind around an underlying cause.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
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

// ExitCode maps a Kind to the process exit code from §6/§7.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	e, ok := err.(*Error)
	if !ok {
		return 1
	}
	switch e.Kind {
	case UserAbort:
		return 1
	case Misuse:
		return 2
	case VcsFailed:
		return 128
	case CorruptObject, MissingObject, AmbiguousOID, BadRevision,
		MergeInRange, UnresolvedConflict, RefUpdateFailed, TodoInvalid:
		return 1
	default:
		return 1
	}
}
