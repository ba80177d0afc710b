// Package crstore persists trace runs as SQLite database files: one file per
// run, three row kinds (functions, calls, arguments) plus run metadata. The
// schema is the durable interchange format between a recording run and every
// offline consumer, so it stays stable across runs.
package crstore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/callrec/callrec"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store is a SQLite-backed trace store. It implements [callrec.Store] for
// writes and exposes the read operations consumed by reporting.
type Store struct {
	db   *sql.DB
	path string
}

var _ callrec.Store = (*Store)(nil)

// Open opens the run database at path, creating the file and applying the
// schema if needed.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

//
//
//

// InsertFunction implements callrec.Store. The insert is idempotent: the
// UNIQUE index over the four identity columns makes concurrent first calls
// to the same declaration resolve to a single row.
func (s *Store) InsertFunction(ctx context.Context, info callrec.FuncInfo) (int64, error) {
	if _, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO functions
			(module, qualname, filename, lineno, signature, type_params, results, receiver, type_name, source_code)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.Module, info.QualName, info.Filename, info.Line,
		info.Signature, info.TypeParams, info.Results, info.Receiver, info.TypeName, info.Source,
	); err != nil {
		return 0, fmt.Errorf("insert function: %w", err)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT id FROM functions WHERE module = ? AND qualname = ? AND filename = ? AND lineno = ?`,
		info.Module, info.QualName, info.Filename, info.Line,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("select function id: %w", err)
	}

	return id, nil
}

// InsertCall implements callrec.Store.
func (s *Store) InsertCall(ctx context.Context, start callrec.CallStart) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO calls
			(function_id, parent_call_id, timestamp, goroutine_id, is_background, method_type, class_name)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		start.FunctionID, start.ParentID, start.Start.UnixNano(),
		start.Goroutine, start.Background, string(start.Kind), start.TypeName,
	)
	if err != nil {
		return 0, fmt.Errorf("insert call: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("call id: %w", err)
	}

	return id, nil
}

// InsertArguments implements callrec.Store. All rows for one call are written
// in a single transaction.
func (s *Store) InsertArguments(ctx context.Context, callID int64, args []callrec.NamedValue) error {
	if len(args) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin arguments: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO arguments (call_id, name, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare arguments: %w", err)
	}
	defer stmt.Close()

	for _, a := range args {
		if _, err := stmt.ExecContext(ctx, callID, a.Name, a.Value); err != nil {
			return fmt.Errorf("insert argument %s: %w", a.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit arguments: %w", err)
	}

	return nil
}

// CompleteCall implements callrec.Store.
func (s *Store) CompleteCall(ctx context.Context, outcome callrec.CallOutcome) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE calls
		SET duration_ms = ?, return_value = ?, exception_type = ?, exception_message = ?, tb = ?
		WHERE id = ?`,
		outcome.DurationMS, outcome.ReturnValue,
		outcome.ExceptionType, outcome.ExceptionMessage, outcome.Traceback,
		outcome.CallID,
	)
	if err != nil {
		return fmt.Errorf("complete call %d: %w", outcome.CallID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete call %d: %w", outcome.CallID, err)
	}
	if n == 0 {
		return fmt.Errorf("complete call %d: no such call", outcome.CallID)
	}

	return nil
}

//
//
//

// Functions returns every traced callable identity, ordered by id.
func (s *Store) Functions(ctx context.Context) ([]callrec.Function, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, module, qualname, filename, lineno, signature, type_params, results, receiver, type_name, source_code
		FROM functions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select functions: %w", err)
	}
	defer rows.Close()

	var functions []callrec.Function
	for rows.Next() {
		var f callrec.Function
		if err := rows.Scan(
			&f.ID, &f.Module, &f.QualName, &f.Filename, &f.Line,
			&f.Signature, &f.TypeParams, &f.Results, &f.Receiver, &f.TypeName, &f.Source,
		); err != nil {
			return nil, fmt.Errorf("scan function: %w", err)
		}
		functions = append(functions, f)
	}

	return functions, rows.Err()
}

// Calls returns every recorded invocation, ordered by id.
func (s *Store) Calls(ctx context.Context) ([]callrec.StaticCall, error) {
	return s.selectCalls(ctx, `ORDER BY id`)
}

// FailedCalls returns the invocations that completed with an exception,
// ordered by id.
func (s *Store) FailedCalls(ctx context.Context) ([]callrec.StaticCall, error) {
	return s.selectCalls(ctx, `WHERE exception_type IS NOT NULL ORDER BY id`)
}

func (s *Store) selectCalls(ctx context.Context, tail string) ([]callrec.StaticCall, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, function_id, parent_call_id, timestamp, duration_ms, goroutine_id, is_background,
		       method_type, class_name, return_value, exception_type, exception_message, tb
		FROM calls `+tail)
	if err != nil {
		return nil, fmt.Errorf("select calls: %w", err)
	}
	defer rows.Close()

	var calls []callrec.StaticCall
	for rows.Next() {
		var (
			c          callrec.StaticCall
			parent     sql.NullInt64
			ns         int64
			duration   sql.NullFloat64
			background int64
			kind       string
			ret        sql.NullString
			excType    sql.NullString
			excMsg     sql.NullString
			tb         sql.NullString
		)
		if err := rows.Scan(
			&c.ID, &c.FunctionID, &parent, &ns, &duration, &c.Goroutine, &background,
			&kind, &c.TypeName, &ret, &excType, &excMsg, &tb,
		); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}

		c.Start = time.Unix(0, ns)
		c.Background = background != 0
		c.Kind = callrec.CallKind(kind)
		if parent.Valid {
			c.ParentID = &parent.Int64
		}
		if duration.Valid {
			c.DurationMS = &duration.Float64
		}
		if ret.Valid {
			c.ReturnValue = &ret.String
		}
		if excType.Valid {
			c.ExceptionType = &excType.String
		}
		if excMsg.Valid {
			c.ExceptionMessage = &excMsg.String
		}
		if tb.Valid {
			c.Traceback = &tb.String
		}

		calls = append(calls, c)
	}

	return calls, rows.Err()
}

// Arguments returns every argument row, ordered by id.
func (s *Store) Arguments(ctx context.Context) ([]callrec.Argument, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, call_id, name, value FROM arguments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select arguments: %w", err)
	}
	defer rows.Close()

	var args []callrec.Argument
	for rows.Next() {
		var a callrec.Argument
		if err := rows.Scan(&a.ID, &a.CallID, &a.Name, &a.Value); err != nil {
			return nil, fmt.Errorf("scan argument: %w", err)
		}
		args = append(args, a)
	}

	return args, rows.Err()
}

// ArgumentsByCall returns the arguments bound to one call, in insertion
// order.
func (s *Store) ArgumentsByCall(ctx context.Context, callID int64) ([]callrec.Argument, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, call_id, name, value FROM arguments WHERE call_id = ? ORDER BY id`, callID)
	if err != nil {
		return nil, fmt.Errorf("select arguments for call %d: %w", callID, err)
	}
	defer rows.Close()

	var args []callrec.Argument
	for rows.Next() {
		var a callrec.Argument
		if err := rows.Scan(&a.ID, &a.CallID, &a.Name, &a.Value); err != nil {
			return nil, fmt.Errorf("scan argument: %w", err)
		}
		args = append(args, a)
	}

	return args, rows.Err()
}

// Meta returns the run metadata written at provisioning.
func (s *Store) Meta(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("select meta: %w", err)
	}
	defer rows.Close()

	meta := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		meta[k] = v
	}

	return meta, rows.Err()
}

func (s *Store) setMeta(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value); err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}
