package score

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromReturnReferencePoints(t *testing.T) {
	m := MustMapper(DefaultBands())

	cases := []struct {
		ret  float64
		want int
	}{
		{6, 0},
		{7, 10},
		{8, 19},
		{8.65, 25},
		{13, 40},
		{58.77, 70},
		{96.63, 85},
		{97, 100},
		{200, 100},
		{-40, 0},
	}
	for _, tc := range cases {
		got, ok := m.FromReturn(tc.ret)
		require.True(t, ok)
		assert.Equalf(t, tc.want, got, "FromReturn(%v)", tc.ret)
	}
}

func TestFromReturnNaN(t *testing.T) {
	m := MustMapper(DefaultBands())
	_, ok := m.FromReturn(math.NaN())
	assert.False(t, ok)
	assert.Nil(t, m.Ptr(nil))

	nan := math.NaN()
	assert.Nil(t, m.Ptr(&nan))
}

func TestFromReturnMonotonic(t *testing.T) {
	m := MustMapper(DefaultBands())
	prev := -1
	for r := -10.0; r <= 150; r += 0.01 {
		s, ok := m.FromReturn(r)
		require.True(t, ok)
		require.GreaterOrEqualf(t, s, prev, "score decreased at %v", r)
		require.True(t, s >= 0 && s <= Ceiling)
		prev = s
	}
}

func TestFromReturnUsesTableStep(t *testing.T) {
	m := MustMapper([]Band{{Return: 0, Score: 0}, {Return: 10, Score: 50}, {Return: 20, Score: 60}})

	got, _ := m.FromReturn(5)
	assert.Equal(t, 25, got)

	got, _ = m.FromReturn(15)
	assert.Equal(t, 55, got)
}

func TestNewMapperValidation(t *testing.T) {
	_, err := NewMapper(nil)
	assert.Error(t, err)

	_, err = NewMapper([]Band{{Return: 5, Score: 10}, {Return: 5, Score: 20}})
	assert.Error(t, err, "thresholds must strictly increase")

	_, err = NewMapper([]Band{{Return: 5, Score: 20}, {Return: 6, Score: 10}})
	assert.Error(t, err, "scores must strictly increase")

	_, err = NewMapper([]Band{{Return: 5, Score: 100}})
	assert.Error(t, err, "the ceiling is implicit")
}
