package sqlcore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Date is a calendar date without a time component, as returned for DATE
// columns and accepted for DATE struct fields.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses an ISO "YYYY-MM-DD" date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t.
func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Converter parses a raw string cell into its in-process value.
type Converter func(string) (any, error)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) (any, error) {
	s = strings.Replace(s, "Z", "+00:00", 1)
	if strings.HasSuffix(s, "+00:00") {
		s = strings.TrimSuffix(s, "+00:00") + "Z"
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("unparseable timestamp %q", s)
}

func parseDate(s string) (any, error) {
	d, err := ParseDate(s)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func parseDecimal(s string) (any, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func parseFloat(s string) (any, error) {
	return strconv.ParseFloat(s, 64)
}

func parseInt(s string) (any, error) {
	return strconv.ParseInt(s, 10, 64)
}

func parseBool(s string) (any, error) {
	return strings.EqualFold(s, "true"), nil
}

var converters = map[string]Converter{
	"DATE":          parseDate,
	"TIMESTAMP":     parseTimestamp,
	"TIMESTAMP_NTZ": parseTimestamp,
	"DECIMAL":       parseDecimal,
	"DOUBLE":        parseFloat,
	"FLOAT":         parseFloat,
	"INT":           parseInt,
	"BIGINT":        parseInt,
	"SMALLINT":      parseInt,
	"TINYINT":       parseInt,
	"BOOLEAN":       parseBool,
}

// ConverterFor returns the converter for a declared SQL column type, or nil
// when the type has no conversion and cells pass through as strings. Any
// parameterization suffix is stripped before lookup ("DECIMAL(10,2)" -> "DECIMAL").
func ConverterFor(sqlType string) Converter {
	base := sqlType
	if i := strings.IndexByte(base, '('); i >= 0 {
		base = base[:i]
	}
	return converters[strings.ToUpper(strings.TrimSpace(base))]
}
