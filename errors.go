package docdex

import "github.com/kailas-cloud/docdex/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound            = domain.ErrDocumentNotFound
	ErrInvalidQuery        = domain.ErrInvalidQuery
	ErrIndexNotReady       = domain.ErrIndexNotReady
	ErrDuplicateKind       = domain.ErrDuplicateKind
	ErrDuplicatePrimaryKey = domain.ErrDuplicatePrimaryKey
	ErrDuplicateProperty   = domain.ErrDuplicateProperty
	ErrMissingAddress      = domain.ErrMissingAddress
	ErrNoPrimaryKey        = domain.ErrNoPrimaryKey
	ErrUnknownKind         = domain.ErrUnknownKind
	ErrNoClient            = domain.ErrNoClient
	ErrUnknownProperty     = domain.ErrUnknownProperty
	ErrNotRelation         = domain.ErrNotRelation
	ErrMissingPrimaryKey   = domain.ErrMissingPrimaryKey
)

// UnknownPropertyError reports the kind and name of an undeclared property.
type UnknownPropertyError = domain.UnknownPropertyError
