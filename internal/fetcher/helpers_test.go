package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func noSleep(context.Context, time.Duration) error { return nil }

func fastRetry(n int) RetryPolicy {
	return RetryPolicy{MaxAttempts: n, InitialBackoff: time.Millisecond, MaxBackoff: 4 * time.Millisecond, Multiplier: 2}
}

func testWindow() Window {
	return Window{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
	}
}

// writeChart serves a v8 chart payload with one close per day starting at 2024-01-01.
func writeChart(w http.ResponseWriter, symbol string, closes []any) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := make([]int64, len(closes))
	for i := range closes {
		ts[i] = start.AddDate(0, 0, i).Unix()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"chart": map[string]any{
			"result": []any{map[string]any{
				"meta":       map[string]any{"symbol": symbol, "currency": "USD"},
				"timestamp":  ts,
				"indicators": map[string]any{"quote": []any{map[string]any{"close": closes}}},
			}},
			"error": nil,
		},
	})
}

func writeChartError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"chart": map[string]any{
			"result": nil,
			"error":  map[string]string{"code": code, "description": description},
		},
	})
}
