package sqlcore

import (
	"fmt"
	"strings"
)

// Row is an ordered, fixed-length result tuple with named column access.
// Rows are immutable after construction; all rows from one result share the
// column names and the name lookup index of their RowFactory.
type Row struct {
	names  []string
	index  map[string]int
	values []any
}

// RowFactory builds Row values for one result shape. The name->index map is
// built once here, not per row.
type RowFactory struct {
	names []string
	index map[string]int
}

// NewRowFactory creates a factory for the given ordered column names.
// Column names must be unique within one result shape.
func NewRowFactory(names []string) (*RowFactory, error) {
	index := make(map[string]int, len(names))
	for i, name := range names {
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("duplicate column name %q", name)
		}
		index[name] = i
	}
	return &RowFactory{names: names, index: index}, nil
}

// Names returns the ordered column names.
func (f *RowFactory) Names() []string {
	return f.names
}

// Row builds a Row from positional values matching the factory's columns.
func (f *RowFactory) Row(values []any) (Row, error) {
	if len(values) != len(f.names) {
		return Row{}, fmt.Errorf("row has %d values, expected %d columns", len(values), len(f.names))
	}
	return Row{names: f.names, index: f.index, values: values}, nil
}

// Len returns the number of columns.
func (r Row) Len() int {
	return len(r.values)
}

// Names returns the ordered column names.
func (r Row) Names() []string {
	return r.names
}

// Index returns the value at position i.
func (r Row) Index(i int) any {
	return r.values[i]
}

// Get returns the value for the named column and whether the column exists.
func (r Row) Get(name string) (any, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.values[i], true
}

// AsMap returns a fresh name->value view of the row.
func (r Row) AsMap() map[string]any {
	m := make(map[string]any, len(r.values))
	for i, name := range r.names {
		m[name] = r.values[i]
	}
	return m
}

func (r Row) String() string {
	var b strings.Builder
	b.WriteString("Row(")
	for i, name := range r.names {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", name, r.values[i])
	}
	b.WriteString(")")
	return b.String()
}
