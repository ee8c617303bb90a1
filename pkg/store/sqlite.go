// Package store keeps sample logs in a SQLite database, one table per log.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"k8s.io/klog/v2"

	"github.com/itohio/thermdaq/pkg/record"
)

var (
	_ record.Recorder = (*SQLite)(nil)
	_ record.Tailer   = (*SQLite)(nil)
	_ record.Undoer   = (*SQLite)(nil)
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLite is a record.Recorder backed by a SQLite table. Each row is inserted
// in its own transaction with synchronous=FULL, so a returned Append is on
// disk.
type SQLite struct {
	db     *sql.DB
	path   string
	table  string
	header []string
	insert *sql.Stmt
	rows   int
	lastID int64 // id of the last appended row, 0 when none can be dropped
}

// Create opens (or creates) the database at path and recreates table with
// one REAL column per schema field.
func Create(path, table string, s *record.Schema) (*SQLite, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}

	st := &SQLite{
		db:     db,
		path:   path,
		table:  table,
		header: s.Header(),
	}

	if err := st.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	if err := st.prepare(); err != nil {
		db.Close()
		return nil, err
	}

	klog.V(2).InfoS("Opened SQLite sample log", "path", path, "table", table, "columns", len(st.header))
	return st, nil
}

// Open opens an existing log table. The header is read from the table
// columns; appends continue after the existing rows.
func Open(path, table string) (*SQLite, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}

	st := &SQLite{db: db, path: path, table: table}
	if err := st.readHeader(); err != nil {
		db.Close()
		return nil, err
	}
	if err := st.prepare(); err != nil {
		db.Close()
		return nil, err
	}
	return st, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_sync=FULL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer.
	db.SetMaxOpenConns(1)
	return db, nil
}

// readHeader loads the column names of an existing table, skipping id.
func (st *SQLite) readHeader() error {
	rows, err := st.db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, quote(st.table)))
	if err != nil {
		return fmt.Errorf("failed to read table %s: %w", st.table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("failed to read table %s: %w", st.table, err)
		}
		if name == "id" {
			continue
		}
		st.header = append(st.header, name)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(st.header) == 0 || st.header[0] != record.TimeField {
		return fmt.Errorf("table %s is not a sample log", st.table)
	}
	return nil
}

func (st *SQLite) prepare() error {
	cols := st.quotedColumns()
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
	insert, err := st.db.Prepare(fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		quote(st.table), strings.Join(cols, ","), placeholders))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	st.insert = insert
	return nil
}

func (st *SQLite) initSchema() error {
	defs := make([]string, 0, len(st.header)+1)
	defs = append(defs, "id INTEGER PRIMARY KEY AUTOINCREMENT")
	for _, c := range st.quotedColumns() {
		defs = append(defs, c+" REAL NOT NULL")
	}

	stmts := []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quote(st.table)),
		fmt.Sprintf(`CREATE TABLE %s (%s)`, quote(st.table), strings.Join(defs, ", ")),
	}
	for _, q := range stmts {
		if _, err := st.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (st *SQLite) quotedColumns() []string {
	cols := make([]string, len(st.header))
	for i, h := range st.header {
		cols[i] = quote(h)
	}
	return cols
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Header returns a copy of the table columns, time first.
func (st *SQLite) Header() []string { return slices.Clone(st.header) }

// Rows returns the number of rows appended through this handle.
func (st *SQLite) Rows() int { return st.rows }

// Append inserts row. The row fields must equal the header.
func (st *SQLite) Append(row record.Row) error {
	if st.insert == nil {
		return fmt.Errorf("sqlite log %s is closed", st.path)
	}
	if !slices.Equal(st.header, row.Fields) || len(row.Values) != len(row.Fields) {
		return &record.SchemaMismatchError{Want: st.Header(), Got: slices.Clone(row.Fields)}
	}

	args := make([]any, len(row.Values))
	for i, v := range row.Values {
		args[i] = v
	}
	res, err := st.insert.Exec(args...)
	if err != nil {
		return fmt.Errorf("failed to insert row: %w", err)
	}
	st.rows++
	if st.lastID, err = res.LastInsertId(); err != nil {
		st.lastID = 0
	}
	return nil
}

// DropLast deletes the row inserted by the last Append.
func (st *SQLite) DropLast() error {
	if st.insert == nil {
		return fmt.Errorf("sqlite log %s is closed", st.path)
	}
	if st.lastID == 0 {
		return fmt.Errorf("sqlite log %s: no row to drop", st.path)
	}
	if _, err := st.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, quote(st.table)), st.lastID); err != nil {
		return fmt.Errorf("failed to drop row: %w", err)
	}
	st.rows--
	st.lastID = 0
	return nil
}

// Tail returns the last n rows in insertion order. n <= 0 returns all rows.
func (st *SQLite) Tail(n int) ([]record.Row, error) {
	cols := strings.Join(st.quotedColumns(), ",")
	var (
		rows *sql.Rows
		err  error
	)
	if n > 0 {
		rows, err = st.db.Query(fmt.Sprintf(
			`SELECT %s FROM (SELECT id, %s FROM %s ORDER BY id DESC LIMIT ?) ORDER BY id ASC`,
			cols, cols, quote(st.table)), n)
	} else {
		rows, err = st.db.Query(fmt.Sprintf(`SELECT %s FROM %s ORDER BY id ASC`, cols, quote(st.table)))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	var out []record.Row
	for rows.Next() {
		r := record.Row{Fields: st.header, Values: make([]float64, len(st.header))}
		dest := make([]any, len(r.Values))
		for i := range r.Values {
			dest[i] = &r.Values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the prepared statement and the database.
func (st *SQLite) Close() error {
	if st.insert == nil {
		return nil
	}
	err := st.insert.Close()
	st.insert = nil
	return errors.Join(err, st.db.Close())
}
