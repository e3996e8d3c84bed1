package embed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// retryBaseDelay is the base duration for exponential backoff between
// attempts. Tests override this to avoid real sleeps.
var retryBaseDelay = 250 * time.Millisecond

const maxAttempts = 3

// doWithRetry executes an HTTP request with up to maxAttempts tries,
// doubling the backoff after each failure. Transport errors, 429, and 5xx
// responses are retried; any other response is returned to the caller.
// newReq builds a fresh request per attempt so the body can be re-read.
func doWithRetry(ctx context.Context, client *http.Client, newReq func(context.Context) (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	backoff := retryBaseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if !retryableStatus(resp.StatusCode) {
			return resp, nil
		}

		// Drain and close the body before retrying.
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		lastErr = &statusError{code: resp.StatusCode}
	}

	return nil, lastErr
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned status %d", e.code)
}
