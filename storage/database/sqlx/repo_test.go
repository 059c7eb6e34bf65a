package sqlxrepos

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWhere(t *testing.T) {
	var w where
	assert.Equal(t, "", w.String())

	w.add("s.grade = ?", "5")
	w.search("", "s.name")
	w.search("50%_off", "s.name", "s.admission_number")
	assert.Equal(t, " WHERE s.grade = ? AND (s.name ILIKE ? OR s.admission_number ILIKE ?)", w.String())
	assert.Equal(t, []interface{}{"5", `%50\%\_off%`, `%50\%\_off%`}, w.args)
}

func TestColumns(t *testing.T) {
	assert.Equal(t, "s.id, s.name", columns("s", "", "id", "name"))
	assert.Equal(t, `s.id AS "student.id", s.name AS "student.name"`, columns("s", "student", "id", "name"))
}

func TestGradeRank(t *testing.T) {
	assert.Equal(t,
		"array_position(ARRAY['1','2','3','4','5','6','7','8','9','10','11','A/L']::varchar[], s.current_grade::varchar)",
		gradeRank("s.current_grade"),
	)
	assert.True(t, isUUID("0b0e8a9e-6a1c-4c7e-9a51-2f4a1c2d3e4f"))
	assert.False(t, isUUID("unknown"))
}
