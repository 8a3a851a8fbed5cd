package slot

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyFromPlainLabel(t *testing.T) {
	assert.Equal(t, "19:00~21:00", Key("19:00~21:00"))
	assert.Equal(t, "19:00~21:00", Key("  19:00~21:00  "))
	assert.Equal(t, "", Key(""))
	assert.Equal(t, "", Key(nil))
}

func TestKeyFromStructured(t *testing.T) {
	assert.Equal(t, "19:00~21:00|3", Key(map[string]any{"time": "19:00~21:00", "courtNo": "3"}))
	assert.Equal(t, "06:00~08:00", Key(map[string]any{"startTime": "06:00~08:00"}))
	assert.Equal(t, "06:00~08:00|1", Key(map[string]any{"slotKey": "06:00~08:00", "court_name": "1"}))

	// Court without a usable time signals "skip this slot".
	assert.Equal(t, "", Key(map[string]any{"courtNo": "2"}))
	assert.Equal(t, "", Key(map[string]any{}))
}

func TestKeySynonymPrecedence(t *testing.T) {
	// "time" wins over later synonyms when both are present.
	got := Key(map[string]any{"time": "10:00~12:00", "label": "other"})
	assert.Equal(t, "10:00~12:00", got)
}

func TestKeyNestedTimeValue(t *testing.T) {
	got := Key(map[string]any{"time": map[string]any{"label": "14:00~16:00"}, "court": "5"})
	assert.Equal(t, "14:00~16:00|5", got)
}

func TestKeyNeverPanics(t *testing.T) {
	inputs := []any{
		nil, "", 42, 3.14, true,
		[]string{"a"},
		map[string]any{"time": nil},
		map[string]any{"time": map[string]any{}},
		Slot{},
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { _ = Key(in) })
	}
}

func TestSlotUnmarshalJSON(t *testing.T) {
	var slots []Slot
	doc := `["20:00~22:00", {"stime": "08:00~10:00", "court_no": 4}, 7]`
	require.NoError(t, json.Unmarshal([]byte(doc), &slots))
	require.Len(t, slots, 3)
	assert.Equal(t, "20:00~22:00", slots[0].Key())
	assert.Equal(t, "08:00~10:00|4", slots[1].Key())
	assert.Equal(t, "7", slots[2].Key())
}

func TestNormalizeDateKey(t *testing.T) {
	assert.Equal(t, "20250301", NormalizeDateKey("2025-03-01"))
	assert.Equal(t, "20250301", NormalizeDateKey("2025/03/01"))
	assert.Equal(t, "20250301", NormalizeDateKey("20250301"))
	assert.Equal(t, "20250301", NormalizeDateKey(" 2025.03.01 "))
}

func TestValidDateKey(t *testing.T) {
	assert.True(t, ValidDateKey("20250301"))
	assert.False(t, ValidDateKey("2025030"))
	assert.False(t, ValidDateKey("202503011"))
	assert.False(t, ValidDateKey("2025030a"))
	assert.False(t, ValidDateKey(""))
}

func TestDateKeyRoundTrip(t *testing.T) {
	d := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "20250301", DateKeyOf(d))
	assert.Equal(t, "03/01", ShortDate("20250301"))
	assert.Equal(t, "bad", ShortDate("bad"))
}

func TestCourtGroup(t *testing.T) {
	cases := []struct {
		fid, title, want string
	}{
		{"gy:gytennis:3", "고양특례시테니스협회 성라코트", "gy:고양특례시테니스협회 성라"},
		{"gy:daehwa", "고양 성저(대화) 테니스장", "gy:고양 성저"},
		{"gy:gytennis:9", "토당코트 3", "gy:토당"},
		{"src:1", "Riverside Tennis Court [indoor]", "src:Riverside Tennis Court"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, CourtGroup(c.fid, c.title), "title %q", c.title)
	}
}

func TestCourtGroupFallsBackToTitle(t *testing.T) {
	// A title the heuristic reduces to nothing keeps its original form as a
	// singleton group.
	assert.Equal(t, "src:(임시)", CourtGroup("src:9", "(임시)"))
	assert.Equal(t, "코트", CourtGroup("", "코트"))
}

func TestSourceOf(t *testing.T) {
	assert.Equal(t, "gy", SourceOf("gy:gytennis:1"))
	assert.Equal(t, "src", SourceOf("src:1"))
	assert.Equal(t, "", SourceOf("bare"))
	assert.Equal(t, "", SourceOf(":1"))
}
