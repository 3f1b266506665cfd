package model_test

import (
	"math"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/library-availability/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func Test_Count_CoercesStoredValues(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int
	}{
		{name: "nil", in: nil, want: 0},
		{name: "int", in: 3, want: 3},
		{name: "int64", in: int64(7), want: 7},
		{name: "negative", in: -2, want: 0},
		{name: "float", in: 2.9, want: 2},
		{name: "nan", in: math.NaN(), want: 0},
		{name: "numeric_string", in: " 4 ", want: 4},
		{name: "float_string", in: "5.0", want: 5},
		{name: "garbage_string", in: "three", want: 0},
		{name: "bytes", in: []byte("6"), want: 6},
		{name: "huge", in: int64(math.MaxInt64), want: math.MaxInt32},
		{name: "bool", in: true, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, model.Count(tt.in))
		})
	}
}

func Test_Layer_JSON(t *testing.T) {
	b, err := json.Marshal(model.Layer(2))
	require.NoError(t, err)
	assert.JSONEq(t, `2`, string(b))

	b, err = json.Marshal(model.LayerUnknown)
	require.NoError(t, err)
	assert.JSONEq(t, `"Unknown"`, string(b))

	for raw, want := range map[string]model.Layer{
		`3`:         3,
		`"4"`:       4,
		`"Unknown"`: model.LayerUnknown,
		`-1`:        model.LayerUnknown,
		`null`:      model.LayerUnknown,
	} {
		var l model.Layer
		require.NoError(t, json.Unmarshal([]byte(raw), &l), raw)
		assert.Equal(t, want, l, raw)
	}
}

func Test_Layer_String(t *testing.T) {
	assert.Equal(t, "Unknown", model.LayerUnknown.String())
	assert.Equal(t, "5", model.Layer(5).String())
}

func Test_Book_Shelf_FallsBackToUnknown(t *testing.T) {
	assert.Equal(t, "3", (&model.Book{ShelfLocation: " 3 "}).Shelf())
	assert.Equal(t, model.UnknownShelf, (&model.Book{ShelfLocation: "  "}).Shelf())
}

func Test_Profile_Missing(t *testing.T) {
	p := model.Profile{
		FullName:      "Ada Cruz",
		Section:       " ",
		YearLevel:     "2",
		Department:    "CS",
		StudentNumber: "",
	}
	assert.Equal(t, []string{"section", "student_number"}, p.Missing())

	p.Section, p.StudentNumber = "B", "AY2021-00212"
	assert.Empty(t, p.Missing())
}

func Test_NormalizeStudentNumber(t *testing.T) {
	assert.Equal(t, "AY2021-00212", model.NormalizeStudentNumber("  ay2021-00212 "))
	assert.Equal(t, "", model.NormalizeStudentNumber("   "))
}

func Test_ReadingSession_JSONFlattensProfile(t *testing.T) {
	rs := model.ReadingSession{
		ID:        "s1",
		Profile:   model.Profile{FullName: "Ada", StudentNumber: "X1"},
		BookTitle: "Dune",
		Status:    model.StatusDoneReading,
	}
	b, err := json.Marshal(rs)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "Ada", m["full_name"])
	assert.Equal(t, "X1", m["student_number"])
	assert.Equal(t, "Done Reading", m["status"])
	assert.NotContains(t, m, "finished_timestamp")
	assert.False(t, rs.Open())
}

func Test_Shelves_StaticMap(t *testing.T) {
	shelves := model.Shelves()
	require.NotEmpty(t, shelves)
	assert.True(t, model.KnownShelf("Outdated"))
	assert.True(t, model.KnownShelf("13"))
	assert.False(t, model.KnownShelf("14"))

	shelves[0].ID = "mutated"
	assert.NotEqual(t, "mutated", model.Shelves()[0].ID)
}
