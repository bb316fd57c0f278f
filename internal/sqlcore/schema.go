package sqlcore

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// ColumnType is the semantic type of a table column, mapped to a dialect's
// native column type at CREATE TABLE time.
type ColumnType int

const (
	TypeText ColumnType = iota
	TypeInt
	TypeFloat
	TypeBool
	TypeDate
	TypeTimestamp
	TypeDecimal
)

// Column is a (name, semantic type) pair derived from a record struct field.
type Column struct {
	Name string
	Type ColumnType
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	dateType    = reflect.TypeOf(Date{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
)

// ColumnsOf derives the ordered column list from a record struct (or pointer
// to struct). Field names become snake_case column names unless overridden by
// a `db` tag; unexported fields and fields tagged `db:"-"` are skipped.
// Pointer fields map to their element type.
func ColumnsOf(prototype any) ([]Column, error) {
	t := reflect.TypeOf(prototype)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("record prototype must be a struct, got %T", prototype)
	}

	var cols []Column
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Tag.Get("db")
		if name == "-" {
			continue
		}
		if name == "" {
			name = snakeCase(field.Name)
		}
		cols = append(cols, Column{Name: name, Type: columnTypeOf(field.Type)})
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("record struct %s has no usable fields", t.Name())
	}
	return cols, nil
}

// RecordValues extracts field values from a record in the same order
// ColumnsOf reports its columns.
func RecordValues(record any) ([]any, error) {
	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, fmt.Errorf("record is a nil pointer")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("record must be a struct, got %T", record)
	}

	t := v.Type()
	var values []any
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() || field.Tag.Get("db") == "-" {
			continue
		}
		fv := v.Field(i)
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				values = append(values, nil)
				continue
			}
			fv = fv.Elem()
		}
		values = append(values, fv.Interface())
	}
	return values, nil
}

func columnTypeOf(t reflect.Type) ColumnType {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t {
	case timeType:
		return TypeTimestamp
	case dateType:
		return TypeDate
	case decimalType:
		return TypeDecimal
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeInt
	case reflect.Float32, reflect.Float64:
		return TypeFloat
	case reflect.Bool:
		return TypeBool
	default:
		return TypeText
	}
}

// snakeCase lowercases a Go field name, keeping acronym runs together:
// UserID -> user_id, HTTPCode -> http_code.
func snakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			newWord := i > 0 && (!unicode.IsUpper(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1])))
			if newWord {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
