// Package fault defines the typed failures returned by stores and engines.
// Callers branch on these with errors.As; none of them indicates a bug, and
// none of them is raised on the happy path.
package fault

import "fmt"

// VersionConflict means a conditional write lost a read-modify-write race.
// Current carries the authoritative stored record so the caller can show
// the user what changed and retry from there.
type VersionConflict struct {
	Entity   string
	ID       string
	Expected int64
	Current  any
}

func (e *VersionConflict) Error() string {
	return fmt.Sprintf("%s %s: version conflict at expected version %d", e.Entity, e.ID, e.Expected)
}

// NotFound means the requested record does not exist in this household.
type NotFound struct {
	Entity string
	ID     string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("%s %s: not found", e.Entity, e.ID)
}

// DuplicateExists means an insert collided with an existing record.
// Existing carries the conflicting record so the caller can offer
// "use existing" vs "force add anyway".
type DuplicateExists struct {
	Entity   string
	Existing any
}

func (e *DuplicateExists) Error() string {
	return fmt.Sprintf("%s: duplicate exists", e.Entity)
}

// ValidationFailed is a caller error: the input never reached the store.
type ValidationFailed struct {
	Field  string
	Reason string
}

func (e *ValidationFailed) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// TransactionAborted means a multi-record atomic write hit a failed
// precondition on one of its items and nothing was applied.
type TransactionAborted struct {
	Reason string
}

func (e *TransactionAborted) Error() string {
	return fmt.Sprintf("transaction aborted: %s", e.Reason)
}

// NotifierUnavailable wraps a failed outbound send. Permanent marks
// failures that will not succeed on retry (invalid recipient, expired
// subscription); everything else is transient. Either way the delivery
// ledger is not marked and the event stays eligible for a later pass.
type NotifierUnavailable struct {
	Channel   string
	Permanent bool
	Err       error
}

func (e *NotifierUnavailable) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("notifier %s unavailable (%s): %v", e.Channel, kind, e.Err)
}

func (e *NotifierUnavailable) Unwrap() error { return e.Err }
