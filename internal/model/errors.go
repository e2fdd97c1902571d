package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested snapshot table does not
	// exist for the run date.
	ErrNotFound = errors.New("not found")
)

// DataIntegrityError reports a client whose reconstructed call timeline
// disagrees with the declared treatment start date. It is fatal for that
// client's output and must not abort the rest of the batch.
type DataIntegrityError struct {
	ClientID string
	Detail   string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("communications data error for client %s: %s", e.ClientID, e.Detail)
}

// DecodeError reports a malformed structure string in a source table.
// Decoding never substitutes defaults: a silent fallback would corrupt the
// negative/positive registration counts downstream.
type DecodeError struct {
	Field string
	Raw   string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s from %q: %v", e.Field, e.Raw, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
