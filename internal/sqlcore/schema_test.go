package sqlcore

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRecord struct {
	ID      int64
	Name    string `db:"full_name"`
	Score   float64
	Active  bool
	BornOn  Date
	SeenAt  time.Time
	Balance decimal.Decimal
	Notes   *string
	Skipped string `db:"-"`
}

func TestColumnsOf(t *testing.T) {
	cols, err := ColumnsOf(testRecord{})
	require.NoError(t, err)

	expected := []Column{
		{Name: "id", Type: TypeInt},
		{Name: "full_name", Type: TypeText},
		{Name: "score", Type: TypeFloat},
		{Name: "active", Type: TypeBool},
		{Name: "born_on", Type: TypeDate},
		{Name: "seen_at", Type: TypeTimestamp},
		{Name: "balance", Type: TypeDecimal},
		{Name: "notes", Type: TypeText},
	}
	assert.Equal(t, expected, cols)
}

func TestColumnsOf_PointerPrototype(t *testing.T) {
	cols, err := ColumnsOf(&testRecord{})
	require.NoError(t, err)
	assert.Len(t, cols, 8)
}

func TestColumnsOf_NotAStruct(t *testing.T) {
	_, err := ColumnsOf("nope")
	assert.Error(t, err)
}

func TestRecordValues(t *testing.T) {
	notes := "hello"
	rec := testRecord{
		ID:      7,
		Name:    "alpha",
		Score:   1.5,
		Active:  true,
		BornOn:  Date{Year: 2000, Month: time.January, Day: 2},
		SeenAt:  time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
		Balance: decimal.RequireFromString("10.00"),
		Notes:   &notes,
		Skipped: "ignored",
	}

	values, err := RecordValues(rec)
	require.NoError(t, err)
	require.Len(t, values, 8)
	assert.Equal(t, int64(7), values[0])
	assert.Equal(t, "alpha", values[1])
	assert.Equal(t, "hello", values[7])
}

func TestRecordValues_NilPointerField(t *testing.T) {
	values, err := RecordValues(testRecord{ID: 1})
	require.NoError(t, err)
	assert.Nil(t, values[7])
}
