// Package score maps annualised returns onto the 0-100 decision scale.
package score

import (
	"errors"
	"fmt"
	"math"
)

// Ceiling is the score for returns strictly above the last band.
const Ceiling = 100

// Band anchors a return percentage to a score.
type Band struct {
	Return float64 `mapstructure:"return"`
	Score  int     `mapstructure:"score"`
}

// DefaultBands is the reference calibration (FD, Nifty, Real Estate, BTC, Gold, Silver).
func DefaultBands() []Band {
	return []Band{
		{Return: 7, Score: 10},
		{Return: 8.65, Score: 25},
		{Return: 13, Score: 40},
		{Return: 50.72, Score: 55},
		{Return: 58.77, Score: 70},
		{Return: 96.63, Score: 85},
	}
}

// Mapper converts return percentages into scores using a validated band table.
type Mapper struct {
	bands []Band
}

// NewMapper validates bands and builds a Mapper.
func NewMapper(bands []Band) (*Mapper, error) {
	if len(bands) == 0 {
		return nil, errors.New("score: at least one band required")
	}
	for i, b := range bands {
		if math.IsNaN(b.Return) || math.IsInf(b.Return, 0) {
			return nil, fmt.Errorf("score: band %d has non-finite return", i)
		}
		if b.Score < 0 || b.Score >= Ceiling {
			return nil, fmt.Errorf("score: band %d score %d outside [0,%d)", i, b.Score, Ceiling)
		}
		if i == 0 {
			continue
		}
		prev := bands[i-1]
		if b.Return <= prev.Return || b.Score <= prev.Score {
			return nil, fmt.Errorf("score: band %d must be strictly above band %d", i, i-1)
		}
	}

	out := make([]Band, len(bands))
	copy(out, bands)
	return &Mapper{bands: out}, nil
}

// MustMapper is NewMapper that panics on invalid bands.
func MustMapper(bands []Band) *Mapper {
	m, err := NewMapper(bands)
	if err != nil {
		panic(err)
	}
	return m
}

// FromReturn maps a return percentage to a score. ok is false for NaN input.
func (m *Mapper) FromReturn(ret float64) (score int, ok bool) {
	if math.IsNaN(ret) {
		return 0, false
	}

	first := m.bands[0]
	last := m.bands[len(m.bands)-1]
	switch {
	case ret < first.Return:
		return 0, true
	case ret > last.Return:
		return Ceiling, true
	case ret == last.Return:
		return last.Score, true
	}

	for i := 0; i < len(m.bands)-1; i++ {
		lower, upper := m.bands[i], m.bands[i+1]
		if ret < lower.Return || ret > upper.Return {
			continue
		}
		frac := (ret - lower.Return) / (upper.Return - lower.Return)
		step := float64(upper.Score - lower.Score)
		return roundHalfUp(float64(lower.Score) + frac*step), true
	}

	return last.Score, true
}

// Ptr maps an optional return; nil or NaN yields nil.
func (m *Mapper) Ptr(ret *float64) *int {
	if ret == nil {
		return nil
	}
	s, ok := m.FromReturn(*ret)
	if !ok {
		return nil
	}
	return &s
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
