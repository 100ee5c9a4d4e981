// Package apperr holds the catalog error taxonomy. Every error here is
// recoverable at the request boundary; Status maps it to an HTTP code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError covers both absent and soft-deleted entities.
type NotFoundError struct {
	Entity string
	ID     uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

type DuplicateCodeError struct {
	Kind  string
	Field string
	Value string
}

func (e *DuplicateCodeError) Error() string {
	return fmt.Sprintf("%s with %s %q already exists", e.Kind, e.Field, e.Value)
}

type IndexOutOfRangeError struct {
	MaterialID uint
	Index      int
	Count      int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("material %d: variant index %d out of range (%d variants)", e.MaterialID, e.Index, e.Count)
}

// DanglingReferenceError means a composition line points at a variant slot
// the current catalog no longer has.
type DanglingReferenceError struct {
	MaterialID   uint
	VariantIndex int
	VariantID    uuid.UUID
	Reason       string
}

func (e *DanglingReferenceError) Error() string {
	msg := fmt.Sprintf("dangling reference to material %d variant %d", e.MaterialID, e.VariantIndex)
	if e.VariantID != uuid.Nil {
		msg += " (" + e.VariantID.String() + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

type InactiveVariantError struct {
	MaterialID   uint
	VariantIndex int
	VariantName  string
}

func (e *InactiveVariantError) Error() string {
	return fmt.Sprintf("material %d variant %d (%s) is inactive", e.MaterialID, e.VariantIndex, e.VariantName)
}

// ReferencedError blocks a deletion while products still use the material.
type ReferencedError struct {
	MaterialID uint
	Count      int64
}

func (e *ReferencedError) Error() string {
	return fmt.Sprintf("material %d is referenced by %d active product(s)", e.MaterialID, e.Count)
}

// IsPricingFailure reports whether err means a price cannot be computed
// from the current catalog. Callers show "price unavailable" for these.
func IsPricingFailure(err error) bool {
	var dangling *DanglingReferenceError
	var inactive *InactiveVariantError
	return errors.As(err, &dangling) || errors.As(err, &inactive)
}

// Status maps an error to an HTTP status code. Unknown errors are 500.
func Status(err error) int {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		duplicate  *DuplicateCodeError
		outOfRange *IndexOutOfRangeError
		dangling   *DanglingReferenceError
		inactive   *InactiveVariantError
		referenced *ReferencedError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &duplicate), errors.As(err, &referenced):
		return http.StatusConflict
	case errors.As(err, &outOfRange), errors.As(err, &dangling), errors.As(err, &inactive):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Code is the stable machine-readable name sent to clients.
func Code(err error) string {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		duplicate  *DuplicateCodeError
		outOfRange *IndexOutOfRangeError
		dangling   *DanglingReferenceError
		inactive   *InactiveVariantError
		referenced *ReferencedError
	)
	switch {
	case errors.As(err, &validation):
		return "validation_error"
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &duplicate):
		return "duplicate_code"
	case errors.As(err, &referenced):
		return "referenced"
	case errors.As(err, &outOfRange):
		return "index_out_of_range"
	case errors.As(err, &dangling):
		return "dangling_reference"
	case errors.As(err, &inactive):
		return "inactive_variant"
	default:
		return "internal"
	}
}
