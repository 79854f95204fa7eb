package hostdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// driverCounter gives every SQLite instance its own registered driver name,
// since the dispatch function ConnectHook registers has to close over that
// particular instance's handler.
var driverCounter atomic.Uint64

// SQLite is the reference HostDatabase implementation: a real embeddable
// database with real triggers, standing in for "a relational database that
// exposes per-row change triggers", wired the same way the teacher wraps
// go-sqlite3 with a ConnectHook-registered scalar function.
type SQLite struct {
	db         *sql.DB
	goquDB     *goqu.Database
	driverName string

	mu      sync.Mutex
	handler RowChangeHandler
}

// Open creates (or attaches to) the sqlite3 database at path (":memory:"
// for an ephemeral host) and registers the dispatch scalar function the
// installed triggers will call.
func Open(path string) (*SQLite, error) {
	s := &SQLite{}
	n := driverCounter.Add(1)
	s.driverName = fmt.Sprintf("sqlite3_pgsubscribe_%d", n)

	sql.Register(s.driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("pg_subscribe_dispatch", s.dispatchFromTrigger, false)
		},
	})

	db, err := sql.Open(s.driverName, path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // a single writer connection keeps trigger firing order == commit order
	s.db = db
	s.goquDB = goqu.New("sqlite3", db)
	return s, nil
}

// SetRowChangeHandler implements HostDatabase.
func (s *SQLite) SetRowChangeHandler(handler RowChangeHandler) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

// dispatchFromTrigger is the scalar function every installed trigger calls;
// oldJSON/newJSON carry the row as JSON TEXT, and the SQL NULL passed for
// the missing side of an insert/delete arrives as a nil []byte.
func (s *SQLite) dispatchFromTrigger(table, kind string, oldJSON, newJSON any) error {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler == nil {
		return nil
	}

	decode := func(v any, dst *map[string]any) error {
		var b []byte
		switch t := v.(type) {
		case string:
			b = []byte(t)
		case []byte:
			b = t
		}
		if len(b) == 0 {
			return nil
		}
		return json.Unmarshal(b, dst)
	}
	var old, newRow map[string]any
	if err := decode(oldJSON, &old); err != nil {
		return fmt.Errorf("decode old row: %w", err)
	}
	if err := decode(newJSON, &newRow); err != nil {
		return fmt.Errorf("decode new row: %w", err)
	}

	var rowKind RowChangeKind
	switch kind {
	case "insert":
		rowKind = RowInsert
	case "update":
		rowKind = RowUpdate
	case "delete":
		rowKind = RowDelete
	default:
		return fmt.Errorf("unknown row change kind %q", kind)
	}

	handler(table, rowKind, old, newRow)
	return nil
}

func triggerName(table string, kind RowChangeKind) string {
	return fmt.Sprintf("_subshared_%s_%s", table, kind)
}

// columnNames returns table's column names in declaration order via
// PRAGMA table_info, used to build the json_object(...) argument list a
// trigger passes to the dispatch function.
func (s *SQLite) columnNames(table string) ([]string, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %q has no columns (does it exist?)", table)
	}
	return cols, rows.Err()
}

func jsonObjectExpr(alias string, cols []string) string {
	var b strings.Builder
	b.WriteString("json_object(")
	for i, c := range cols {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s, %s.%s", quoteLit(c), alias, quoteIdent(c))
	}
	b.WriteByte(')')
	return b.String()
}

// InstallTrigger implements HostDatabase.
func (s *SQLite) InstallTrigger(table string, kind RowChangeKind) error {
	cols, err := s.columnNames(table)
	if err != nil {
		return err
	}

	name := triggerName(table, kind)
	var body string
	switch kind {
	case RowInsert:
		body = fmt.Sprintf(
			"CREATE TRIGGER IF NOT EXISTS %s AFTER INSERT ON %s BEGIN SELECT pg_subscribe_dispatch(%s, 'insert', NULL, %s); END;",
			quoteIdent(name), quoteIdent(table), quoteLit(table), jsonObjectExpr("NEW", cols))
	case RowUpdate:
		body = fmt.Sprintf(
			"CREATE TRIGGER IF NOT EXISTS %s AFTER UPDATE ON %s BEGIN SELECT pg_subscribe_dispatch(%s, 'update', %s, %s); END;",
			quoteIdent(name), quoteIdent(table), quoteLit(table), jsonObjectExpr("OLD", cols), jsonObjectExpr("NEW", cols))
	case RowDelete:
		body = fmt.Sprintf(
			"CREATE TRIGGER IF NOT EXISTS %s AFTER DELETE ON %s BEGIN SELECT pg_subscribe_dispatch(%s, 'delete', %s, NULL); END;",
			quoteIdent(name), quoteIdent(table), quoteLit(table), jsonObjectExpr("OLD", cols))
	}

	_, err = s.db.Exec(body)
	if err != nil {
		return fmt.Errorf("install trigger %s: %w", name, err)
	}
	log.Debug().Str("table", table).Str("kind", kind.String()).Str("trigger", name).Msg("installed trigger")
	return nil
}

// DropTrigger implements HostDatabase.
func (s *SQLite) DropTrigger(table string, kind RowChangeKind) error {
	name := triggerName(table, kind)
	_, err := s.db.Exec(fmt.Sprintf("DROP TRIGGER IF EXISTS %s", quoteIdent(name)))
	if err != nil {
		return fmt.Errorf("drop trigger %s: %w", name, err)
	}
	log.Debug().Str("table", table).Str("kind", kind.String()).Str("trigger", name).Msg("dropped trigger")
	return nil
}

// Exec runs a DML/DDL statement against the underlying connection. It is
// not part of the HostDatabase contract — callers drive writes through
// their own path to this database (the host's normal INSERT/UPDATE/DELETE
// surface; the engine package only ever reacts to it via triggers) — but a
// reference implementation that embeds its *sql.DB privately still needs
// some exported way to issue writes, so the tests use this instead of
// reaching into package-private state.
func (s *SQLite) Exec(ctx context.Context, sqlText string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, sqlText, args...)
}

// Query implements HostDatabase. It runs sqlText as-is (the subscribed
// query text, already validated by the analyzer) and returns rows in the
// select list's declared column order.
func (s *SQLite) Query(ctx context.Context, sqlText string) ([]string, []map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		out = append(out, EncodeRow(cols, values))
	}
	return cols, out, rows.Err()
}

// TableExists implements HostDatabase.
func (s *SQLite) TableExists(table string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT count(*) FROM sqlite_master WHERE type='table' AND name = ?", table,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Close implements HostDatabase.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLit(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
