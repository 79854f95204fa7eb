// Package hostdb defines the contract a relational database must satisfy
// to back the change-propagation engine — per-row change triggers plus a
// query surface — and ships a SQLite-based reference implementation.
package hostdb

import "context"

// RowChangeKind is the DML operation a trigger fired for.
type RowChangeKind int

const (
	RowInsert RowChangeKind = iota
	RowUpdate
	RowDelete
)

func (k RowChangeKind) String() string {
	switch k {
	case RowInsert:
		return "insert"
	case RowUpdate:
		return "update"
	case RowDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// RowChangeHandler receives one forwarded trigger firing. old is nil for
// inserts, new is nil for deletes. The caller stamps the logical timestamp;
// this package only forwards row content and change kind.
type RowChangeHandler func(table string, kind RowChangeKind, old, new map[string]any)

// HostDatabase is the contract SharedTriggerManager, TriggerDispatch and
// SnapshotEvaluator depend on. It is satisfied by the SQLite reference
// implementation in this package, but the engine package never imports
// go-sqlite3 directly — only this interface.
type HostDatabase interface {
	// InstallTrigger creates the row-level AFTER trigger for (table, kind)
	// if it does not already exist. Idempotent.
	InstallTrigger(table string, kind RowChangeKind) error

	// DropTrigger removes the row-level trigger for (table, kind).
	// Idempotent — dropping a trigger that doesn't exist is not an error.
	DropTrigger(table string, kind RowChangeKind) error

	// SetRowChangeHandler registers the single dispatcher callback invoked
	// synchronously from inside the committing transaction for every row
	// change on a table with an installed trigger.
	SetRowChangeHandler(handler RowChangeHandler)

	// Query runs sqlText in a read-only context and returns the ordered
	// column names (select-list order, honoring aliases) alongside the
	// resulting rows.
	Query(ctx context.Context, sqlText string) (columns []string, rows []map[string]any, err error)

	// TableExists reports whether table is a real base table. The engine
	// does not call it; a subscription naming a missing table fails when
	// its triggers are installed.
	TableExists(table string) (bool, error)

	// Close releases the underlying connection pool.
	Close() error
}
