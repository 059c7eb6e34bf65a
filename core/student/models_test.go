package student

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextGrade(t *testing.T) {
	for i, g := range Grades[:len(Grades)-1] {
		next, err := NextGrade(g)
		require.NoError(t, err)
		assert.Equal(t, Grades[i+1], next)
	}

	next, err := NextGrade("11")
	require.NoError(t, err)
	assert.Equal(t, GradeAL, next)

	next, err = NextGrade(GradeAL)
	require.NoError(t, err)
	assert.Equal(t, GradeAL, next)

	_, err = NextGrade("12")
	assert.Error(t, err)
}

func TestNextClass(t *testing.T) {
	tests := []struct {
		oldGrade, newGrade, class string
		want                      string
	}{
		{"5", "6", "5s2", "6s2"},
		{"9", "10", "9", "10"},
		{"10", "11", "10-B", "11-B"},
		{"5", "6", "05s1", "06s1"},
		{"9", "10", "09A", "10A"},
		{"1", "2", "12A", "12A"},  // leading number is not the grade
		{"5", "6", "Blue", "Blue"}, // no leading number
		{"11", GradeAL, "11s2", "11s2"},
		{GradeAL, GradeAL, "Maths", "Maths"},
	}
	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			assert.Equal(t, tt.want, NextClass(tt.oldGrade, tt.newGrade, tt.class))
		})
	}
}

func TestUpgrade(t *testing.T) {
	s, err := Upgrade(Student{Grade: "7", Class: "7s1"})
	require.NoError(t, err)
	assert.Equal(t, "8", s.Grade)
	assert.Equal(t, "8s1", s.Class)

	_, err = Upgrade(Student{Grade: "Nursery"})
	assert.Error(t, err)
}

func TestGradeRank(t *testing.T) {
	assert.Less(t, GradeRank("2"), GradeRank("10"))
	assert.Less(t, GradeRank("11"), GradeRank(GradeAL))
	assert.Equal(t, -1, GradeRank("13"))
	assert.True(t, IsGrade(GradeAL))
	assert.False(t, IsGrade("0"))
}
