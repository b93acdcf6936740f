package apperrors

import "errors"

// ErrNotFound indicates that a requested record could not be found.
var ErrNotFound = errors.New("record not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrAlreadyReconciled indicates that a transaction external id
// already has a persisted match result.
var ErrAlreadyReconciled = errors.New("transaction already reconciled")

// ErrConflictingSettlement indicates an optimistic-concurrency loss:
// the candidate was settled by another transaction first.
var ErrConflictingSettlement = errors.New("candidate already settled")

// ErrCandidateFetch indicates a failure reading the open candidate
// set; retried with backoff before surfacing.
var ErrCandidateFetch = errors.New("candidate fetch failed")

// ErrImbalancedCombination indicates a combination whose summed amount
// deviates beyond tolerance. The search guards against this, so it is
// treated as a logic error when observed.
var ErrImbalancedCombination = errors.New("combination amounts do not balance")
