package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"revstats/internal/config"
	"revstats/internal/logging"
	"revstats/internal/util"

	"github.com/tidwall/gjson"
)

// SleepFunc pauses between attempts. It returns early with ctx.Err() when
// the context is cancelled.
type SleepFunc func(ctx context.Context, d time.Duration) error

// DefaultSleep is the sleep used between retry attempts.
// Tests replace it to avoid real waits.
var DefaultSleep SleepFunc = sleepContext

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ErrExhaustedRetries is returned by callers that treat an ExhaustedRetries
// outcome as a failure.
var ErrExhaustedRetries = errors.New("response data missing after all retry attempts")

// Outcome classifies how a retried request ended.
type Outcome int

const (
	// Success means the final response carried a top-level "data" value.
	Success Outcome = iota
	// ExhaustedRetries means every attempt came back without "data".
	ExhaustedRetries
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case ExhaustedRetries:
		return "exhausted_retries"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the final response of a request together with how it ended.
// Body always holds the last response body, even on ExhaustedRetries.
type Result struct {
	StatusCode int
	Body       []byte
	Attempts   int
	Outcome    Outcome
}

// Attempt performs a single request and returns its status code and body.
type Attempt func(ctx context.Context) (int, []byte, error)

// ExecuteRequest sends req and reads the whole response body.
func ExecuteRequest(client *http.Client, req *http.Request) (*http.Response, []byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("failed to read response body (status %d): %w", resp.StatusCode, err)
	}
	logging.Logf(logging.Debug, "%s %s -> %d (%d bytes)", req.Method, req.URL.Redacted(), resp.StatusCode, len(body))
	return resp, body, nil
}

// HasData reports whether body is a JSON document with a non-null
// top-level "data" member.
func HasData(body []byte) bool {
	data := gjson.GetBytes(body, "data")
	return data.Exists() && data.Type != gjson.Null
}

// RetryUntilData runs attempt until its response carries "data" or
// retryCfg.MaxAttempts is reached, sleeping retryCfg.Backoff seconds between
// attempts. Transport errors and context cancellation end the loop at once
// and are returned as errors. Running out of attempts is not an error: the
// returned Result has Outcome ExhaustedRetries and the caller decides.
func RetryUntilData(ctx context.Context, attempt Attempt, retryCfg config.RetryConfig) (Result, error) {
	maxAttempts := retryCfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	backoff := time.Duration(retryCfg.Backoff) * time.Second

	var res Result
	for res.Attempts < maxAttempts {
		res.Attempts++
		status, body, err := attempt(ctx)
		if err != nil {
			return res, err
		}
		res.StatusCode, res.Body = status, body
		if HasData(body) {
			res.Outcome = Success
			return res, nil
		}

		logging.Logf(logging.Warning, "Attempt %d/%d returned no data (status %d): %s", res.Attempts, maxAttempts, status, util.Snippet(body))
		if res.Attempts < maxAttempts {
			logging.Logf(logging.Info, "Retrying in %v...", backoff)
			if err := DefaultSleep(ctx, backoff); err != nil {
				return res, err
			}
		}
	}
	res.Outcome = ExhaustedRetries
	return res, nil
}
