// Package fetch performs HTTP GETs with bounded retry and exponential backoff.
//
// Every attempt is classified into an Outcome. The retry loop in Fetcher.Get
// consumes outcomes with an explicit attempt counter and backoff value:
// Success ends the loop, Fatal ends it with an error, and Retryable sleeps and
// tries again until the retry budget runs out.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind tags an Outcome.
type Kind int

// Outcome kinds.
const (
	KindSuccess Kind = iota
	KindRetryable
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRetryable:
		return "retryable"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one transport attempt.
type Outcome struct {
	Kind   Kind
	Body   []byte
	Reason string
	Err    error
}

// Success wraps a usable body.
func Success(body []byte) Outcome {
	return Outcome{Kind: KindSuccess, Body: body}
}

// Retryable marks a transient failure worth another attempt.
func Retryable(reason string, cause error) Outcome {
	return Outcome{Kind: KindRetryable, Reason: reason, Err: cause}
}

// Fatal marks a failure that must not be retried.
func Fatal(err error) Outcome {
	return Outcome{Kind: KindFatal, Err: err, Reason: err.Error()}
}

// transientStatuses are the HTTP codes treated as temporary.
var transientStatuses = map[int]struct{}{
	http.StatusTooManyRequests:    {},
	http.StatusServiceUnavailable: {},
	http.StatusGatewayTimeout:     {},
}

// IsTransientStatus reports whether code is rate limiting or temporary unavailability.
func IsTransientStatus(code int) bool {
	_, ok := transientStatuses[code]
	return ok
}

// Classify turns a raw transport result into an Outcome.
func Classify(ctx context.Context, rawURL string, resp Response, err error, snippetBytes int) Outcome {
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Fatal(fmt.Errorf("get %s: %w", rawURL, ctxErr))
		}
		if errors.Is(err, context.Canceled) {
			return Fatal(fmt.Errorf("get %s: %w", rawURL, err))
		}
		return Retryable("network: "+err.Error(), err)
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return Success(resp.Body)
	case IsTransientStatus(resp.StatusCode):
		return Retryable(fmt.Sprintf("http %d", resp.StatusCode), nil)
	default:
		return Fatal(&HTTPError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Snippet:    snippet(resp.Body, snippetBytes),
		})
	}
}

func snippet(body []byte, n int) string {
	if n <= 0 || len(body) <= n {
		return string(body)
	}
	return string(body[:n])
}
