package fetcher

import (
	"math"
	"sort"
	"time"
)

// Point is one daily observation of a symbol.
type Point struct {
	Time  time.Time
	Price float64
}

// Series is a time-ordered set of points for one symbol.
type Series []Point

// Window is the inclusive date range a series must cover.
type Window struct {
	Start time.Time
	End   time.Time
}

// Padded widens the window by days on each side to absorb non-trading days at the edges.
func (w Window) Padded(days int) Window {
	pad := time.Duration(days) * 24 * time.Hour
	return Window{Start: w.Start.Add(-pad), End: w.End.Add(pad)}
}

// Provider is a market data source. Each implementation describes how to fetch one symbol
// as an ordered list of attempts (hosts, retries); Fetch runs them.
type Provider interface {
	Name() string
	Attempts(symbol string, w Window) []Attempt
}

// Clean sorts points by time, drops non-finite or non-positive prices and keeps the last
// point for duplicated timestamps.
func Clean(points []Point) Series {
	valid := make([]Point, 0, len(points))
	for _, p := range points {
		if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) || p.Price <= 0 {
			continue
		}
		valid = append(valid, p)
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].Time.Before(valid[j].Time) })

	out := valid[:0]
	for _, p := range valid {
		if n := len(out); n > 0 && out[n-1].Time.Equal(p.Time) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return Series(out)
}

// At returns the latest point at or before t. When the series starts after t the earliest
// point is returned instead.
func (s Series) At(t time.Time) (Point, bool) {
	if len(s) == 0 {
		return Point{}, false
	}
	// index of the first point strictly after t
	idx := sort.Search(len(s), func(i int) bool { return s[i].Time.After(t) })
	if idx == 0 {
		return s[0], true
	}
	return s[idx-1], true
}

// Span returns the first and last timestamps of the series.
func (s Series) Span() (time.Time, time.Time) {
	if len(s) == 0 {
		return time.Time{}, time.Time{}
	}
	return s[0].Time, s[len(s)-1].Time
}
