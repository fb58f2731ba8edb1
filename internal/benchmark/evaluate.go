package benchmark

import (
	"errors"
	"fmt"
	"math"
	"time"

	"xirr-benchmark/internal/fetcher"
	"xirr-benchmark/internal/xirr"
)

var (
	ErrNoPurchases   = errors.New("no purchases to replicate")
	ErrNoPriceData   = errors.New("price series missing")
	ErrNoFXData      = errors.New("fx series missing")
	ErrInvalidPrice  = errors.New("invalid price")
	ErrInvalidFXRate = errors.New("invalid fx rate")
)

// Outcome is the synthetic investment replayed into one asset.
type Outcome struct {
	Rate      float64
	Units     float64
	Proceeds  float64
	Cashflows []xirr.Cashflow
}

// Evaluate replays purchases into an asset priced by prices and sells everything on saleDate.
// When fx is non-nil, prices are quoted in a foreign currency and fx holds home units per
// foreign unit.
func Evaluate(purchases []xirr.Cashflow, saleDate time.Time, prices fetcher.Series, fx fetcher.Series, needsFX bool) (Outcome, error) {
	if len(purchases) == 0 {
		return Outcome{}, ErrNoPurchases
	}
	if len(prices) == 0 {
		return Outcome{}, ErrNoPriceData
	}
	if needsFX && len(fx) == 0 {
		return Outcome{}, ErrNoFXData
	}

	flows := make([]xirr.Cashflow, 0, len(purchases)+1)
	units := 0.0
	for _, p := range purchases {
		if !(p.Amount < 0) {
			return Outcome{}, fmt.Errorf("purchase on %s has non-negative amount %v", p.Date.Format(dateLayout), p.Amount)
		}
		price, rate, err := priceAt(prices, fx, needsFX, p.Date)
		if err != nil {
			return Outcome{}, err
		}
		units += (-p.Amount / rate) / price
		flows = append(flows, p)
	}

	sellPrice, sellRate, err := priceAt(prices, fx, needsFX, saleDate)
	if err != nil {
		return Outcome{}, err
	}
	proceeds := units * sellPrice * sellRate
	if !finitePositive(proceeds) {
		return Outcome{}, fmt.Errorf("%w: proceeds %v", ErrInvalidPrice, proceeds)
	}
	flows = append(flows, xirr.Cashflow{Date: saleDate, Amount: proceeds})

	rate, err := xirr.Solve(flows)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{Rate: rate, Units: units, Proceeds: proceeds, Cashflows: flows}, nil
}

const dateLayout = "2006-01-02"

func priceAt(prices, fx fetcher.Series, needsFX bool, on time.Time) (float64, float64, error) {
	pt, ok := prices.At(on)
	if !ok {
		return 0, 0, ErrNoPriceData
	}
	if !finitePositive(pt.Price) {
		return 0, 0, fmt.Errorf("%w on %s: %v", ErrInvalidPrice, on.Format(dateLayout), pt.Price)
	}
	if !needsFX {
		return pt.Price, 1, nil
	}

	rate, ok := fx.At(on)
	if !ok {
		return 0, 0, ErrNoFXData
	}
	if !finitePositive(rate.Price) {
		return 0, 0, fmt.Errorf("%w on %s: %v", ErrInvalidFXRate, on.Format(dateLayout), rate.Price)
	}
	return pt.Price, rate.Price, nil
}

func finitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
