package sqlcore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Dialect selects identifier quoting and native column types.
type Dialect int

const (
	// DialectWarehouse uses backtick-quoted identifiers and up to
	// catalog.schema.table qualification.
	DialectWarehouse Dialect = iota
	// DialectPostgres uses double-quoted identifiers and up to
	// schema.table qualification.
	DialectPostgres
)

func (d Dialect) quote() string {
	if d == DialectPostgres {
		return `"`
	}
	return "`"
}

// maxParts is the dialect's maximum number of dot-separated name segments.
// Overflow folds into the last segment rather than being rejected, matching
// the split cap the qualified-name grammar implies.
func (d Dialect) maxParts() int {
	if d == DialectPostgres {
		return 2
	}
	return 3
}

func (d Dialect) String() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "warehouse"
}

// EscapeName quotes a single identifier for the dialect. Existing surrounding
// quotes are stripped and interior quote characters are doubled.
func (d Dialect) EscapeName(name string) string {
	q := d.quote()
	name = strings.Trim(name, q)
	name = strings.ReplaceAll(name, q, q+q)
	return q + name + q
}

// EscapeFullName quotes a dot-separated qualified name, escaping each segment
// independently.
func (d Dialect) EscapeFullName(fullName string) string {
	parts := strings.SplitN(fullName, ".", d.maxParts())
	for i, part := range parts {
		parts[i] = d.EscapeName(part)
	}
	return strings.Join(parts, ".")
}

// ColumnTypeName maps a semantic column type to the dialect's native type.
func (d Dialect) ColumnTypeName(t ColumnType) string {
	if d == DialectPostgres {
		switch t {
		case TypeInt:
			return "BIGINT"
		case TypeFloat:
			return "DOUBLE PRECISION"
		case TypeBool:
			return "BOOLEAN"
		case TypeDate:
			return "DATE"
		case TypeTimestamp:
			return "TIMESTAMP WITH TIME ZONE"
		case TypeDecimal:
			return "NUMERIC(38,18)"
		default:
			return "TEXT"
		}
	}
	switch t {
	case TypeInt:
		return "BIGINT"
	case TypeFloat:
		return "DOUBLE"
	case TypeBool:
		return "BOOLEAN"
	case TypeDate:
		return "DATE"
	case TypeTimestamp:
		return "TIMESTAMP"
	case TypeDecimal:
		return "DECIMAL(38,18)"
	default:
		return "STRING"
	}
}

// EscapeValue serializes a value as a SQL literal. Strings are single-quoted
// with interior quotes doubled; slices become parenthesized lists.
func EscapeValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return strconv.Itoa(v)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case time.Time:
		return "'" + v.Format(time.RFC3339Nano) + "'"
	case Date:
		return "'" + v.String() + "'"
	case decimal.Decimal:
		return "'" + v.String() + "'"
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = EscapeValue(item)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	default:
		return EscapeValue(fmt.Sprintf("%v", value))
	}
}
