package fetcher

import (
	"math"
	"testing"
	"time"
)

func d(day int) time.Time {
	return time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC)
}

func TestCleanFiltersAndSorts(t *testing.T) {
	series := Clean([]Point{
		{Time: d(5), Price: 50},
		{Time: d(1), Price: 10},
		{Time: d(2), Price: math.NaN()},
		{Time: d(3), Price: -3},
		{Time: d(4), Price: 0},
		{Time: d(6), Price: math.Inf(1)},
		{Time: d(1), Price: 11},
	})

	if len(series) != 2 {
		t.Fatalf("expected 2 points after cleaning, got %d: %+v", len(series), series)
	}
	if !series[0].Time.Equal(d(1)) || series[0].Price != 11 {
		t.Fatalf("duplicate timestamp should keep last point, got %+v", series[0])
	}
	if !series[1].Time.Equal(d(5)) {
		t.Fatalf("series should be time ordered, got %+v", series)
	}
}

func TestSeriesAtOrBefore(t *testing.T) {
	series := Series{{Time: d(1), Price: 1}, {Time: d(3), Price: 3}, {Time: d(5), Price: 5}}

	cases := []struct {
		name   string
		target time.Time
		want   float64
	}{
		{"between points picks earlier", d(2), 1},
		{"exact match", d(3), 3},
		{"before first falls forward", time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC), 1},
		{"after last", d(20), 5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, ok := series.At(tc.target)
			if !ok {
				t.Fatal("lookup on a non-empty series must succeed")
			}
			if p.Price != tc.want {
				t.Fatalf("want %v, got %v", tc.want, p.Price)
			}
		})
	}

	if _, ok := (Series{}).At(d(1)); ok {
		t.Fatal("empty series should not return a price")
	}
}

func TestWindowPadded(t *testing.T) {
	w := Window{Start: d(10), End: d(12)}.Padded(3)
	if !w.Start.Equal(d(7)) || !w.End.Equal(d(15)) {
		t.Fatalf("unexpected padded window %+v", w)
	}
}

func TestSeriesSpan(t *testing.T) {
	first, last := Series{{Time: d(2), Price: 1}, {Time: d(9), Price: 2}}.Span()
	if !first.Equal(d(2)) || !last.Equal(d(9)) {
		t.Fatalf("unexpected span %v..%v", first, last)
	}
	if first, last := (Series{}).Span(); !first.IsZero() || !last.IsZero() {
		t.Fatal("empty series should span nothing")
	}
}
