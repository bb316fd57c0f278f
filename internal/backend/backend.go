package backend

import (
	"context"
	"fmt"
	"strings"

	"go-lakehouse-gateway/internal/sqlcore"
)

// Save modes accepted by SaveTable.
const (
	ModeAppend    = "append"
	ModeOverwrite = "overwrite"
)

// insertBatchSize caps how many records one inlined INSERT statement carries.
const insertBatchSize = 1000

// RowIterator walks a query result. It is finite and single-use; each Fetch
// call issues a new query and returns a fresh iterator.
type RowIterator interface {
	// Next advances to the next row, returning false at the end or on error.
	Next() bool
	// Row returns the current row. Valid only after a true Next.
	Row() sqlcore.Row
	// Err returns the error that terminated iteration, if any.
	Err() error
	// Close releases the underlying result. Safe to call more than once.
	Close()
}

// SqlBackend executes SQL against one concrete storage or compute target.
type SqlBackend interface {
	// Execute runs a statement and returns the affected row count.
	Execute(ctx context.Context, sql string, args ...any) (int64, error)
	// Fetch runs a query and returns an iterator over its rows.
	Fetch(ctx context.Context, sql string, args ...any) (RowIterator, error)
	// FetchOne returns the first row, with ok=false on an empty result.
	FetchOne(ctx context.Context, sql string, args ...any) (sqlcore.Row, bool, error)
	// FetchValue returns the first column of the first row, or nil.
	FetchValue(ctx context.Context, sql string, args ...any) (any, error)
	// FetchAll materializes the full result.
	FetchAll(ctx context.Context, sql string, args ...any) ([]sqlcore.Row, error)
	// SaveTable inserts records (structs of one type) into a table,
	// truncating first in overwrite mode. No records is a no-op.
	SaveTable(ctx context.Context, name string, records []any, mode string) error
	// CreateTable issues an idempotent CREATE TABLE derived from the
	// prototype struct's fields.
	CreateTable(ctx context.Context, name string, prototype any) error
	Close(ctx context.Context) error
}

// executor is the primitive surface the shared operations build on.
type executor interface {
	Execute(ctx context.Context, sql string, args ...any) (int64, error)
	Fetch(ctx context.Context, sql string, args ...any) (RowIterator, error)
}

// ops implements the derived SqlBackend operations on top of Execute/Fetch,
// parameterized by dialect and insert style. Backends embed it and point
// exec back at themselves.
type ops struct {
	exec    executor
	dialect sqlcore.Dialect
	// inline selects batched INSERTs with escaped literal values; otherwise
	// one parameterized statement per record.
	inline bool
}

func (o *ops) FetchOne(ctx context.Context, sql string, args ...any) (sqlcore.Row, bool, error) {
	it, err := o.exec.Fetch(ctx, sql, args...)
	if err != nil {
		return sqlcore.Row{}, false, err
	}
	defer it.Close()

	if !it.Next() {
		return sqlcore.Row{}, false, it.Err()
	}
	return it.Row(), true, nil
}

func (o *ops) FetchValue(ctx context.Context, sql string, args ...any) (any, error) {
	row, ok, err := o.FetchOne(ctx, sql, args...)
	if err != nil || !ok {
		return nil, err
	}
	if row.Len() == 0 {
		return nil, nil
	}
	return row.Index(0), nil
}

func (o *ops) FetchAll(ctx context.Context, sql string, args ...any) ([]sqlcore.Row, error) {
	it, err := o.exec.Fetch(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var rows []sqlcore.Row
	for it.Next() {
		rows = append(rows, it.Row())
	}
	return rows, it.Err()
}

func (o *ops) CreateTable(ctx context.Context, name string, prototype any) error {
	columns, err := sqlcore.ColumnsOf(prototype)
	if err != nil {
		return fmt.Errorf("deriving schema for %q: %w", name, err)
	}

	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = o.dialect.EscapeName(col.Name) + " " + o.dialect.ColumnTypeName(col.Type)
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		o.dialect.EscapeFullName(name), strings.Join(defs, ", "))

	_, err = o.exec.Execute(ctx, stmt)
	return err
}

func (o *ops) SaveTable(ctx context.Context, name string, records []any, mode string) error {
	if len(records) == 0 {
		return nil
	}
	switch mode {
	case ModeAppend, ModeOverwrite:
	default:
		return fmt.Errorf("unknown save mode %q", mode)
	}

	columns, err := sqlcore.ColumnsOf(records[0])
	if err != nil {
		return fmt.Errorf("deriving schema for %q: %w", name, err)
	}
	table := o.dialect.EscapeFullName(name)

	if mode == ModeOverwrite {
		if _, err := o.exec.Execute(ctx, "TRUNCATE TABLE "+table); err != nil {
			return err
		}
	}

	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = o.dialect.EscapeName(col.Name)
	}
	columnList := strings.Join(names, ", ")

	if o.inline {
		return o.insertInline(ctx, table, columnList, records)
	}
	return o.insertParameterized(ctx, table, columnList, len(columns), records)
}

// insertInline writes records in batches of insertBatchSize, each batch one
// INSERT with escaped literal values.
func (o *ops) insertInline(ctx context.Context, table, columnList string, records []any) error {
	for start := 0; start < len(records); start += insertBatchSize {
		end := min(start+insertBatchSize, len(records))

		tuples := make([]string, 0, end-start)
		for _, record := range records[start:end] {
			values, err := sqlcore.RecordValues(record)
			if err != nil {
				return err
			}
			tuples = append(tuples, sqlcore.EscapeValue(values))
		}

		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			table, columnList, strings.Join(tuples, ", "))
		if _, err := o.exec.Execute(ctx, stmt); err != nil {
			return fmt.Errorf("inserting batch at offset %d: %w", start, err)
		}
	}
	return nil
}

// insertParameterized issues one bound-parameter INSERT per record. The
// driver supports parameters safely, so values are never inlined.
func (o *ops) insertParameterized(ctx context.Context, table, columnList string, columnCount int, records []any) error {
	placeholders := make([]string, columnCount)
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, columnList, strings.Join(placeholders, ", "))

	for i, record := range records {
		values, err := sqlcore.RecordValues(record)
		if err != nil {
			return err
		}
		if _, err := o.exec.Execute(ctx, stmt, values...); err != nil {
			return fmt.Errorf("inserting record %d: %w", i, err)
		}
	}
	return nil
}

// sliceIterator adapts a materialized result to RowIterator.
type sliceIterator struct {
	rows []sqlcore.Row
	pos  int
}

func newSliceIterator(rows []sqlcore.Row) *sliceIterator {
	return &sliceIterator{rows: rows}
}

func (it *sliceIterator) Next() bool {
	if it.pos >= len(it.rows) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Row() sqlcore.Row { return it.rows[it.pos-1] }
func (it *sliceIterator) Err() error       { return nil }
func (it *sliceIterator) Close()           { it.rows = nil; it.pos = 0 }
