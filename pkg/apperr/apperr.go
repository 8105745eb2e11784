// Package apperr defines the error kinds surfaced by the messaging core:
// authentication/authorization, validation, and backing-store failures.
package apperr

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrNotFound marks a missing entity (item, image).
var ErrNotFound = errors.New("not found")

// AuthError means the caller is not authenticated, or is not a legitimate
// party to the operation. Never retried.
type AuthError struct {
	Unauthenticated bool
	Reason          string
}

func (e *AuthError) Error() string {
	if e.Unauthenticated {
		return "login required"
	}
	if e.Reason == "" {
		return "not authorized"
	}
	return "not authorized: " + e.Reason
}

// ValidationError is malformed caller input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// StoreError wraps a backing-store failure or timeout. The core never retries
// it; the UI may offer a manual retry.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

// Timeout reports whether the store call hit its deadline.
func (e *StoreError) Timeout() bool { return errors.Is(e.Err, context.DeadlineExceeded) }

func Unauthenticated() error { return &AuthError{Unauthenticated: true} }

func Forbidden(reason string) error { return &AuthError{Reason: reason} }

func Invalid(field, reason string) error { return &ValidationError{Field: field, Reason: reason} }

// Store wraps err as a StoreError; nil stays nil and errors that already carry
// a kind pass through. gorm's ErrRecordNotFound becomes ErrNotFound.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if IsAuth(err) || IsValidation(err) || IsStore(err) || errors.Is(err, ErrNotFound) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

func IsAuth(err error) bool {
	var e *AuthError
	return errors.As(err, &e)
}

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsStore(err error) bool {
	var e *StoreError
	return errors.As(err, &e)
}
