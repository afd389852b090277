package trophydomain

import (
	"context"
	"errors"
	"fmt"
)

// Failure taxonomy. Per-entity failures never abort a batch.
var (
	ErrSourceUnavailable   = errors.New("score source unavailable")
	ErrMalformedPayload    = errors.New("malformed score payload")
	ErrStoreFailure        = errors.New("record store failure")
	ErrSchedulerReentrancy = errors.New("anchored action already fired for this occurrence")
)

var (
	ErrInvalidTag       = errors.New("invalid tag")
	ErrPlayerNotFound   = errors.New("player not found")
	ErrTagOwnedByOther  = errors.New("tag is linked by another owner")
	ErrBackupMissing    = errors.New("no backup taken for reset date")
	ErrSnapshotNotFound = errors.New("backup snapshot not found")
)

// SourceError describes a failed poll of one tag.
type SourceError struct {
	Tag        Tag
	Kind       error // ErrSourceUnavailable or ErrMalformedPayload
	StatusCode int
	Err        error
}

func (e *SourceError) Error() string {
	msg := fmt.Sprintf("%s: tag %s", e.Kind, e.Tag)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SourceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// StoreError wraps a persistence failure with the operation that hit it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStoreFailure, e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreFailure, e.Err}
}

// NewStoreError wraps err unless it is nil or already a store error.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreFailure) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// FailureKind returns a stable label for err, used in logs, metrics and events.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedPayload):
		return "malformed_payload"
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, ErrStoreFailure):
		return "store_failure"
	case errors.Is(err, ErrSchedulerReentrancy):
		return "scheduler_reentrancy"
	case errors.Is(err, ErrBackupMissing):
		return "backup_missing"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}
