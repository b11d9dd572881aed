// Package writer buffers rows per table and writes them as multi-row upserts.
package writer

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNonScalarValue is returned when a row value is a nested structure.
	ErrNonScalarValue = errors.New("non-scalar row value")
	// ErrUnknownColumn is returned when a row names a column the table does not declare.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrMissingPrimaryKey is returned when a row lacks a primary key column.
	ErrMissingPrimaryKey = errors.New("missing primary key value")
)

// DefaultThreshold is the buffered row count that triggers a flush.
const DefaultThreshold = 100

// PostgreSQL accepts at most 65535 bind parameters per statement.
const maxParams = 65535

// Execer runs a parameterized statement. *database.Database and pgx.Tx satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// TableSpec declares the columns a writer fills and the table's primary key.
// Columns not listed are never touched by an upsert. KeepOnConflict names
// columns that are written on insert but left alone when the row exists.
type TableSpec struct {
	Name           string
	Columns        []string
	Key            []string
	KeepOnConflict []string
}

func (s TableSpec) validate() error {
	if s.Name == "" {
		return errors.New("table name is required")
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("table %s declares no columns", s.Name)
	}
	if len(s.Key) == 0 {
		return fmt.Errorf("table %s declares no primary key", s.Name)
	}
	for _, k := range s.Key {
		if !slices.Contains(s.Columns, k) {
			return fmt.Errorf("table %s: key column %s is not a declared column", s.Name, k)
		}
	}
	for _, c := range s.KeepOnConflict {
		if !slices.Contains(s.Columns, c) || slices.Contains(s.Key, c) {
			return fmt.Errorf("table %s: %s must be a declared non-key column", s.Name, c)
		}
	}
	return nil
}

// Row maps column names to scalar values. Declared columns missing from a
// row are written as NULL.
type Row map[string]any

// Stats counts what a writer has written so far.
type Stats struct {
	RowsWritten int
	Flushes     int
}

// Writer is a per-table upsert buffer. A Writer belongs to one import task
// and is not safe for concurrent use.
type Writer struct {
	db        Execer
	spec      TableSpec
	threshold int
	buf       []Row
	stats     Stats
	parent    *Writer
}

// New creates a writer for spec that flushes once threshold rows are buffered.
func New(db Execer, spec TableSpec, threshold int) (*Writer, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	if limit := maxParams / len(spec.Columns); threshold > limit {
		threshold = limit
	}
	return &Writer{db: db, spec: spec, threshold: threshold}, nil
}

// After makes w flush parent before each of its own flushes, including
// the automatic ones. Use it when w's rows reference parent's table.
func (w *Writer) After(parent *Writer) { w.parent = parent }

// Pending returns the number of buffered rows.
func (w *Writer) Pending() int { return len(w.buf) }

// Stats returns the write counters.
func (w *Writer) Stats() Stats { return w.stats }

// InsertRow validates and buffers row, flushing when the threshold is reached.
func (w *Writer) InsertRow(ctx context.Context, row Row) error {
	for col, v := range row {
		if !slices.Contains(w.spec.Columns, col) {
			return fmt.Errorf("%s.%s: %w", w.spec.Name, col, ErrUnknownColumn)
		}
		if !isScalar(v) {
			return fmt.Errorf("%s.%s holds %T: %w", w.spec.Name, col, v, ErrNonScalarValue)
		}
	}
	for _, k := range w.spec.Key {
		if v, ok := row[k]; !ok || isNil(v) {
			return fmt.Errorf("%s.%s: %w", w.spec.Name, k, ErrMissingPrimaryKey)
		}
	}

	w.buf = append(w.buf, row)
	if len(w.buf) >= w.threshold {
		return w.Flush(ctx)
	}
	return nil
}

// Flush writes the buffered rows as one upsert statement. The buffer is
// only cleared once the statement succeeded, so a failed flush can be retried.
func (w *Writer) Flush(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}
	if w.parent != nil {
		if err := w.parent.Flush(ctx); err != nil {
			return err
		}
	}

	rows := w.dedup()
	query, args := w.statement(rows)
	if _, err := w.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert %d rows into %s: %w", len(rows), w.spec.Name, err)
	}

	w.buf = w.buf[:0]
	w.stats.RowsWritten += len(rows)
	w.stats.Flushes++
	return nil
}

// dedup keeps the last row per primary key at the position the key was
// first seen.
func (w *Writer) dedup() []Row {
	index := make(map[string]int, len(w.buf))
	rows := make([]Row, 0, len(w.buf))
	for _, row := range w.buf {
		k := w.keyOf(row)
		if i, ok := index[k]; ok {
			rows[i] = row
			continue
		}
		index[k] = len(rows)
		rows = append(rows, row)
	}
	return rows
}

func (w *Writer) keyOf(row Row) string {
	var b strings.Builder
	for i, k := range w.spec.Key {
		if i > 0 {
			b.WriteByte(0)
		}
		fmt.Fprintf(&b, "%v", deref(row[k]))
	}
	return b.String()
}

func (w *Writer) statement(rows []Row) (string, []any) {
	cols := w.spec.Columns
	args := make([]any, 0, len(rows)*len(cols))

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(w.spec.Name)
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES ")
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, col := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			args = append(args, row[col])
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(len(args)))
		}
		b.WriteByte(')')
	}

	b.WriteString(" ON CONFLICT (")
	b.WriteString(strings.Join(w.spec.Key, ", "))
	b.WriteString(") ")

	var updates []string
	for _, col := range cols {
		if !slices.Contains(w.spec.Key, col) && !slices.Contains(w.spec.KeepOnConflict, col) {
			updates = append(updates, col+" = EXCLUDED."+col)
		}
	}
	if len(updates) == 0 {
		b.WriteString("DO NOTHING")
	} else {
		b.WriteString("DO UPDATE SET ")
		b.WriteString(strings.Join(updates, ", "))
	}

	return b.String(), args
}

var (
	timeType   = reflect.TypeFor[time.Time]()
	valuerType = reflect.TypeFor[driver.Valuer]()
)

func isScalar(v any) bool {
	if v == nil {
		return true
	}
	t := reflect.TypeOf(v)
	if t.Implements(valuerType) {
		return true
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
		if t.Implements(valuerType) {
			return true
		}
	}
	if t == timeType {
		return true
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8
	}
	return false
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		return rv.Elem().Interface()
	}
	return v
}
