// Package failure defines the typed errors raised while validating a
// candidate database and the retry policy each one implies.
package failure

import (
	"errors"
	"fmt"

	"github.com/ambigdb/ambigdb/internal/match"
)

// Kind categorizes a validation failure.
type Kind string

const (
	// KindStructural: a required anchor or relationship is absent from the
	// schema.
	KindStructural Kind = "structural"
	// KindDataInsertion: anchors exist but the rows fail a required invariant.
	KindDataInsertion Kind = "data_insertion"
	// KindIntrospection: the catalog could not be read.
	KindIntrospection Kind = "introspection"
	KindInternal      Kind = "internal"
)

// Error is a typed validation failure. Role names the concept role being
// resolved when the failure occurred, if any.
type Error struct {
	Kind        Kind
	Role        string
	Message     string
	Cause       error
	Suggestions []string
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Role != "" {
		msg = e.Role + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithSuggestions appends "did you mean" hints.
func (e *Error) WithSuggestions(s ...string) *Error {
	e.Suggestions = append(e.Suggestions, s...)
	return e
}

// WithCandidates attaches up to three fuzzy suggestions for label drawn from
// the given schema identifiers.
func (e *Error) WithCandidates(label string, candidates []string) *Error {
	return e.WithSuggestions(match.Suggest(label, candidates, 3)...)
}

// Structural creates a structural error for a concept role.
func Structural(role, format string, args ...interface{}) *Error {
	return &Error{Kind: KindStructural, Role: role, Message: fmt.Sprintf(format, args...)}
}

// DataInsertion creates a data error for a concept role.
func DataInsertion(role, format string, args ...interface{}) *Error {
	return &Error{Kind: KindDataInsertion, Role: role, Message: fmt.Sprintf(format, args...)}
}

// Introspection wraps a catalog read failure.
func Introspection(cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindIntrospection, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the failure kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

func IsStructural(err error) bool    { return err != nil && KindOf(err) == KindStructural }
func IsDataInsertion(err error) bool { return err != nil && KindOf(err) == KindDataInsertion }
func IsIntrospection(err error) bool { return err != nil && KindOf(err) == KindIntrospection }

// RoleOf returns the concept role err is about, or "".
func RoleOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Role
	}
	return ""
}

// SuggestionsOf returns the suggestions carried by err, if any.
func SuggestionsOf(err error) []string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Suggestions
	}
	return nil
}

// Action is what a caller should do with a candidate after validation.
type Action string

const (
	ActionAccept            Action = "accept"
	ActionRegenerateInserts Action = "regenerate_inserts"
	ActionRegenerateSchema  Action = "regenerate_schema"
	ActionDiscard           Action = "discard"
)

// NextAction maps a validation result to the retry layer it calls for. Data
// errors retry the inserts against the same schema, structural errors retry
// the schema, everything else discards the candidate.
func NextAction(err error) Action {
	if err == nil {
		return ActionAccept
	}
	switch KindOf(err) {
	case KindDataInsertion:
		return ActionRegenerateInserts
	case KindStructural:
		return ActionRegenerateSchema
	default:
		return ActionDiscard
	}
}
