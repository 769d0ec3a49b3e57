package model

import (
	"errors"
	"fmt"
)

// Kind classifies failures so the HTTP layer can turn them into status
// messages without inspecting library errors.
type Kind string

const (
	KindUnsupportedFormat Kind = "UnsupportedFormat"
	KindFetch             Kind = "FetchError"
	KindParse             Kind = "ParseError"
	KindEmbedding         Kind = "EmbeddingError"
	KindAuth              Kind = "AuthError"
	KindRateLimit         Kind = "RateLimitError"
	KindNetwork           Kind = "NetworkError"
	KindNoDocuments       Kind = "NoDocuments"
	KindInvalidRequest    Kind = "InvalidRequest"
	KindInternal          Kind = "InternalError"
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error. A nil err is allowed for failures with no cause.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Ef is E with a formatted cause.
func Ef(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

var ErrNoDocuments = E(KindNoDocuments, "ask", errors.New("No documents loaded. Please upload documents first."))
