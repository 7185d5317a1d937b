package model

import "errors"

// Reconciliation errors.
var (
	// ErrNotFound is returned when a receipt, charge or statement id is unknown.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyMatched is returned when a commit targets a record that already
	// has a counterpart. The existing match is never overwritten.
	ErrAlreadyMatched = errors.New("already matched")

	// ErrNotMatched is returned when unmatching a receipt that has no match.
	ErrNotMatched = errors.New("not matched")

	// ErrInsufficientData marks an attempt that could not run because the
	// receipt carries no usable fields. Callers treat it as an outcome, not a failure.
	ErrInsufficientData = errors.New("insufficient receipt data")

	// ErrInsufficientTrainingData marks a training run skipped for lack of samples.
	ErrInsufficientTrainingData = errors.New("insufficient training data")

	// ErrTrainingInProgress is returned when Train is invoked while another run is active.
	ErrTrainingInProgress = errors.New("training already in progress")
)
