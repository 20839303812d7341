// Package mud defines the error taxonomy shared by every layer of the
// server. Repositories, managers, and command handlers classify failures
// with a Kind and a stable short code; the session layer turns them into
// user-facing messages without leaking internals.
package mud

import (
	"errors"
	"fmt"
)

// Kind classifies an error for translation at the edge.
type Kind int

const (
	Internal Kind = iota // unclassified; never shown verbatim
	Input                // malformed command, bad arguments
	Auth                 // bad credentials, not logged in
	Authz                // permitted users only (admin)
	NotFound             // missing entity
	Conflict             // duplicate id, name taken
	State                // illegal transition (already in combat, no such exit)
	Timeout
	Storage
	Transport
)

var kindNames = map[Kind]string{
	Internal:  "internal",
	Input:     "input",
	Auth:      "auth",
	Authz:     "authz",
	NotFound:  "not_found",
	Conflict:  "conflict",
	State:     "state",
	Timeout:   "timeout",
	Storage:   "storage",
	Transport: "transport",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "internal"
}

// Error carries a kind, a stable short code (used as a localization key
// suffix and in client payloads), a safe message, and an optional cause.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Code, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a classified error. The format string becomes the safe message.
func E(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error without losing the chain.
func Wrap(err error, kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// KindOf walks the wrap chain and returns the first classified kind,
// or Internal when nothing in the chain is a *Error.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return Internal
}

// CodeOf returns the short code of the first classified error in the
// chain, or "internal" when there is none.
func CodeOf(err error) string {
	var me *Error
	if errors.As(err, &me) {
		return me.Code
	}
	return "internal"
}

// MessageOf returns the safe user-facing message of the first classified
// error, or the empty string for unclassified errors (callers substitute
// a generic internal-error line).
func MessageOf(err error) string {
	var me *Error
	if errors.As(err, &me) {
		return me.Message
	}
	return ""
}

// IsKind reports whether any error in the chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if me, ok := e.(*Error); ok && me.Kind == kind {
			return true
		}
	}
	return false
}
