// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates a malformed request.
var ErrValidation = errors.New("validation failed")

// ErrComplianceRejected indicates the compliance pre-check refused the operation.
var ErrComplianceRejected = errors.New("compliance check rejected the request")

// ErrDelegateUnavailable indicates the delegate orchestrator could not be reached
// or refused a submission. Distinct from a delegate-side execution failure.
var ErrDelegateUnavailable = errors.New("delegate orchestrator unavailable")

// ErrPollTimeout indicates polling gave up before the consultation reached a terminal state.
var ErrPollTimeout = errors.New("consultation did not complete before the poll deadline")
