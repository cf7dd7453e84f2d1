// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package wefterr defines the error taxonomy shared by all weft engines.
// Every user-visible failure carries a Kind and a single-line reason
// suitable for display in a chat surface.
package wefterr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure. Kinds are stable strings so they can be
// matched by callers and surfaced over the tool boundary.
type Kind string

const (
	KindNotFound         Kind = "NOT_FOUND"
	KindPermissionDenied Kind = "PERMISSION_DENIED"
	KindScopeDenied      Kind = "SCOPE_DENIED"
	KindDMNotAllowed     Kind = "DM_NOT_ALLOWED"
	KindAlreadyExists    Kind = "ALREADY_EXISTS"
	KindInvalidInput     Kind = "INVALID_INPUT"
	KindConflict         Kind = "CONFLICT"
	KindBusy             Kind = "BUSY"
	KindDegradedSearch   Kind = "DEGRADED_SEARCH"
	KindInternal         Kind = "INTERNAL"
)

// Error is a classified weft error. Reason is one human-readable line;
// Err is the wrapped cause, if any.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Unwrap returns the wrapped cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage returns the single-line reason without the kind prefix or
// the wrapped cause. INTERNAL errors are redacted to a generic line.
func (e *Error) UserMessage() string {
	if e.Kind == KindInternal {
		return "internal error"
	}
	return e.Reason
}

// New creates a classified error with a formatted reason.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error around a cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from an error chain. Unclassified errors
// report KindInternal; nil reports the empty Kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
