// Package xirr computes the annualised internal rate of return of irregularly dated cashflows.
package xirr

import (
	"errors"
	"math"
	"sort"
	"time"
)

const (
	// DefaultGuess is the starting annual rate for the Newton iteration.
	DefaultGuess = 0.12
	// MaxIterations bounds the Newton iteration.
	MaxIterations = 150
	// Tolerance is the convergence threshold on the rate step.
	Tolerance = 1e-8
	// DaysPerYear is the fixed year length used for time fractions.
	DaysPerYear = 365.0
)

var (
	// ErrTooFewCashflows is returned when fewer than two cashflows are supplied.
	ErrTooFewCashflows = errors.New("xirr: at least two cashflows required")
	// ErrNoSignChange is returned when the cashflows are all inflows or all outflows.
	ErrNoSignChange = errors.New("xirr: cashflows need at least one outflow and one inflow")
	// ErrDegenerate is returned when NPV or its derivative is not usable.
	ErrDegenerate = errors.New("xirr: npv or derivative is not finite or derivative is zero")
	// ErrNoConvergence is returned when the iteration budget is exhausted.
	ErrNoConvergence = errors.New("xirr: did not converge")
)

// Cashflow is a dated signed amount. Negative amounts are outflows (purchases).
type Cashflow struct {
	Date   time.Time
	Amount float64
}

// Solve returns the annual rate r, as a decimal fraction, at which the NPV of flows is zero.
func Solve(flows []Cashflow) (float64, error) {
	return SolveWithGuess(flows, DefaultGuess)
}

// SolveWithGuess is Solve with an explicit starting rate.
func SolveWithGuess(flows []Cashflow, guess float64) (float64, error) {
	if len(flows) < 2 {
		return 0, ErrTooFewCashflows
	}
	if !hasSignChange(flows) {
		return 0, ErrNoSignChange
	}

	sorted := Sorted(flows)
	years := yearFractions(sorted)

	rate := guess
	for i := 0; i < MaxIterations; i++ {
		npv, derivative := npvAndDerivative(sorted, years, rate)
		if !isFinite(npv) || !isFinite(derivative) || derivative == 0 {
			return 0, ErrDegenerate
		}

		next := rate - npv/derivative
		if math.Abs(next-rate) < Tolerance {
			return next, nil
		}
		rate = next
	}

	return 0, ErrNoConvergence
}

// NPV returns the net present value of flows at the given annual rate.
func NPV(flows []Cashflow, rate float64) float64 {
	if len(flows) == 0 {
		return 0
	}
	sorted := Sorted(flows)
	npv, _ := npvAndDerivative(sorted, yearFractions(sorted), rate)
	return npv
}

// Sorted returns a copy of flows ordered ascending by date. Equal dates keep their input order.
func Sorted(flows []Cashflow) []Cashflow {
	out := make([]Cashflow, len(flows))
	copy(out, flows)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// YearsBetween is the fixed 365-day year fraction from start to t.
func YearsBetween(start, t time.Time) float64 {
	return t.Sub(start).Hours() / 24 / DaysPerYear
}

func yearFractions(sorted []Cashflow) []float64 {
	start := sorted[0].Date
	years := make([]float64, len(sorted))
	for i, cf := range sorted {
		years[i] = YearsBetween(start, cf.Date)
	}
	return years
}

func npvAndDerivative(flows []Cashflow, years []float64, rate float64) (float64, float64) {
	var npv, derivative float64
	for i, cf := range flows {
		npv += cf.Amount / math.Pow(1+rate, years[i])
		derivative -= years[i] * cf.Amount / math.Pow(1+rate, years[i]+1)
	}
	return npv, derivative
}

func hasSignChange(flows []Cashflow) bool {
	var pos, neg bool
	for _, cf := range flows {
		switch {
		case cf.Amount > 0:
			pos = true
		case cf.Amount < 0:
			neg = true
		}
	}
	return pos && neg
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
