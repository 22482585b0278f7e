// Copyright (C) 2020-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package unrepairerr defines the typed error kinds shared across unrepair's
// components, so that callers (chiefly the CLI layer) can distinguish them
// with errors.Is/errors.As instead of parsing messages.
package unrepairerr

import "fmt"

// Kind identifies one of the taxonomy's fatal error categories. Diagnostics
// (per-symbol ABI findings) are not part of this taxonomy: they are data,
// not errors, and are aggregated into AbiCheckResult instead.
type Kind int

const (
	// ParseError: an ELF or archive could not be parsed.
	ParseError Kind = iota
	// NotFound: a required DT_NEEDED entry or RECORD file is absent.
	NotFound
	// InvalidArgument: a caller-supplied argument violates a precondition.
	InvalidArgument
	// AmbiguousMapping: more than one bundled library matches one system candidate.
	AmbiguousMapping
	// NoMatches: the mapper produced zero (bundled, system) pairs.
	NoMatches
	// NoSystemLibs: no system candidate libraries were supplied or discovered.
	NoSystemLibs
	// IoError: filesystem or archive I/O failed.
	IoError
)

func (k Kind) String() string {
	switch k {
	case ParseError:
		return "ParseError"
	case NotFound:
		return "NotFound"
	case InvalidArgument:
		return "InvalidArgument"
	case AmbiguousMapping:
		return "AmbiguousMapping"
	case NoMatches:
		return "NoMatches"
	case NoSystemLibs:
		return "NoSystemLibs"
	case IoError:
		return "IoError"
	default:
		return "Unknown"
	}
}

// Error is a typed, wrapped error carrying one of the Kind taxonomy values.
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is supports errors.Is(err, unrepairerr.KindParseError) (etc) via a sentinel Kind
// wrapped as an *Error; errors.Is compares Kind values only.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// New constructs an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error of the given kind, wrapping an underlying error.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Wrapped: err}
}

// Sentinel values usable with errors.Is(err, unrepairerr.KindParseError) style
// checks against a bare Kind rather than constructing a dummy *Error.
var (
	KindParseError      = &Error{Kind: ParseError}
	KindNotFound        = &Error{Kind: NotFound}
	KindInvalidArgument = &Error{Kind: InvalidArgument}
	KindAmbiguousMap    = &Error{Kind: AmbiguousMapping}
	KindNoMatches       = &Error{Kind: NoMatches}
	KindNoSystemLibs    = &Error{Kind: NoSystemLibs}
	KindIoError         = &Error{Kind: IoError}
)
