// Package errs defines the stable error kinds the core change-propagation
// engine returns across its component boundary. Every entry point documented
// in spec.md §7 returns one of these instead of leaking ad-hoc errors, so a
// caller (the SQL function-call surface, the admin API, a test) can switch
// on kind without string matching.
package errs

import "fmt"

// InvalidQueryError is returned when analyze fails to parse the subscribed
// text, the statement is not a single SELECT, or it is a disallowed
// statement kind.
type InvalidQueryError struct {
	Query  string
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid query: %s: %s", e.Reason, e.Query)
}

// UnsupportedQueryError is returned for a shape the analyzer recognizes but
// cannot serve with either evaluation strategy, e.g. a recursive CTE or a
// NULL-introducing outer join without identity columns.
type UnsupportedQueryError struct {
	Query  string
	Reason string
}

func (e *UnsupportedQueryError) Error() string {
	return fmt.Sprintf("unsupported query: %s: %s", e.Reason, e.Query)
}

// ResourceExhaustedError is returned when the slot table or tracked-table
// registry has no capacity left for a new subscription.
type ResourceExhaustedError struct {
	Resource string
	Limit    int
}

func (e *ResourceExhaustedError) Error() string {
	return fmt.Sprintf("resource exhausted: %s limit of %d reached", e.Resource, e.Limit)
}

// OverflowError surfaces as the final record a cursor observes before it is
// expected to re-subscribe or call subscribe_snapshot.
type OverflowError struct {
	SlotID string
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("slot %s ring overflowed, pending updates were dropped", e.SlotID)
}

// CancelledError is returned to a cursor whose slot was cancelled externally,
// either via pg_subscribe_cancel or because its backend died.
type CancelledError struct {
	SlotID string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("slot %s was cancelled", e.SlotID)
}

// InternalError wraps an invariant violation or host-database failure that
// aborts the subscription. The underlying cause is always logged.
type InternalError struct {
	Cause error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error: %v", e.Cause)
}

func (e *InternalError) Unwrap() error {
	return e.Cause
}
