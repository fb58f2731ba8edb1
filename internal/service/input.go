package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical transaction date format.
const DateLayout = "2006-01-02"

var dateLayouts = []string{DateLayout, "2006-1-2", time.RFC3339, time.RFC3339Nano}

// ParseDate accepts ISO dates, unpadded dates and RFC3339 timestamps and returns UTC midnight of
// the calendar day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// Amount is a transaction amount that may arrive as a JSON number or string. Unparseable input
// leaves Valid false instead of failing the whole request.
type Amount struct {
	Value decimal.Decimal
	Valid bool
}

// NewAmount builds a valid amount.
func NewAmount(v decimal.Decimal) Amount { return Amount{Value: v, Valid: true} }

// ParseAmount parses a textual amount, tolerating surrounding whitespace and thousands separators.
func ParseAmount(s string) Amount {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return Amount{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}
	}
	return NewAmount(d)
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	*a = Amount{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		*a = ParseAmount(s)
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return nil
	}
	*a = NewAmount(d)
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return []byte(a.Value.String()), nil
}

// Transaction is one dated cashflow as submitted by a client.
type Transaction struct {
	Date   string `json:"date"`
	Amount Amount `json:"amount"`
}

// Request is the analysis input.
type Request struct {
	Transactions []Transaction `json:"transactions"`
}

type flow struct {
	date   time.Time
	amount decimal.Decimal
}
