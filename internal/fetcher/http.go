package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) xirr-benchmark/1.0"

// maxBodyBytes bounds how much of an upstream response is read. Decades of daily closes fit well
// inside it.
const maxBodyBytes = 8 << 20

// ErrBodyTooLarge reports an upstream response longer than maxBodyBytes.
var ErrBodyTooLarge = errors.New("response body too large")

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func userAgent(ua string) string {
	if ua = strings.TrimSpace(ua); ua != "" {
		return ua
	}
	return defaultUserAgent
}

// get performs a GET and returns the status code and body, reading at most maxBodyBytes.
func get(ctx context.Context, client *http.Client, endpoint string, header http.Header) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	return readBody(resp.StatusCode, resp.Body, maxBodyBytes)
}

func readBody(status int, r io.Reader, limit int64) (int, []byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return status, nil, err
	}
	if int64(len(body)) > limit {
		return status, nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, limit)
	}
	return status, body, nil
}

func networkError(provider, symbol, endpoint string, err error) *FetchError {
	return &FetchError{
		Provider:  provider,
		Symbol:    symbol,
		Endpoint:  endpoint,
		Message:   err.Error(),
		Transient: !errors.Is(err, ErrBodyTooLarge),
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
