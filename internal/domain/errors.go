package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrInvalidQuery signals a malformed search request.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrIndexNotReady signals that background indexing did not finish in time.
	ErrIndexNotReady = errors.New("index not ready")
)

// Definition errors. These are raised while kinds are being defined or on
// first use and are never recovered internally.
var (
	// ErrDuplicateKind signals two kinds with the same name under one index/type.
	ErrDuplicateKind = errors.New("duplicate document kind")
	// ErrDuplicatePrimaryKey signals more than one primary key on a kind.
	ErrDuplicatePrimaryKey = errors.New("more than one primary key")
	// ErrDuplicateProperty signals two declarations with the same name.
	ErrDuplicateProperty = errors.New("duplicate property")
	// ErrMissingAddress signals a kind without index or type.
	ErrMissingAddress = errors.New("index and type are required")
	// ErrNoPrimaryKey signals a primary key read on a kind that declares none.
	ErrNoPrimaryKey = errors.New("kind declares no primary key")
	// ErrUnknownKind signals a relation target or variant that is not registered.
	ErrUnknownKind = errors.New("unknown document kind")
	// ErrNoClient signals a registry without a store client.
	ErrNoClient = errors.New("no store client configured")
)

// Caller-contract errors.
var (
	// ErrUnknownProperty signals a name that the kind does not declare.
	ErrUnknownProperty = errors.New("unknown property")
	// ErrNotRelation signals a relation accessor used on a plain property.
	ErrNotRelation = errors.New("property is not a relation")
	// ErrMissingPrimaryKey signals a store of a document whose primary key has no value.
	ErrMissingPrimaryKey = errors.New("primary key has no value")
)

// UnknownPropertyError wraps ErrUnknownProperty with the offending name.
type UnknownPropertyError struct {
	Kind string
	Name string
}

func (e *UnknownPropertyError) Error() string {
	return fmt.Sprintf("%s: %s has no property %q", ErrUnknownProperty.Error(), e.Kind, e.Name)
}

func (e *UnknownPropertyError) Unwrap() error { return ErrUnknownProperty }

// NewUnknownProperty creates an unknown property error.
func NewUnknownProperty(kind, name string) error {
	return &UnknownPropertyError{Kind: kind, Name: name}
}
