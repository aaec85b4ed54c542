package kv

import "fmt"

// KeyExistsError is returned by PutIfAbsent when the key is taken.
// Existing carries the stored item.
type KeyExistsError struct {
	Type     string
	SortKey  string
	Existing *Item
}

func (e *KeyExistsError) Error() string {
	return fmt.Sprintf("%s record %s already exists", e.Type, e.SortKey)
}

// ConditionFailedError is returned by ConditionalUpdate when the stored
// version (or guarded status) no longer matches. Current is the item as
// stored at failure time, or nil if it has been deleted.
type ConditionFailedError struct {
	SortKey  string
	Expected int64
	Current  *Item
}

func (e *ConditionFailedError) Error() string {
	return fmt.Sprintf("condition failed on %s at expected version %d", e.SortKey, e.Expected)
}

// WriteAbortedError is returned by TransactWrite when any item's
// precondition failed; the whole batch was rolled back.
type WriteAbortedError struct {
	Reason string
}

func (e *WriteAbortedError) Error() string {
	return fmt.Sprintf("transact write aborted: %s", e.Reason)
}
