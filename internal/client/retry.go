package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/meinzeug-cloud/mrsunkwn/internal/backoff"
)

// DefaultRetryDelay is the wait before reissuing a request that came back
// with a retryable status.
const DefaultRetryDelay = time.Second

// RetryPolicy reissues requests whose response status is transient.
// MaxAttempts counts the original request, so 2 means exactly one retry.
type RetryPolicy struct {
	RetryableStatusCodes []int
	MaxAttempts          int
	Backoff              backoff.Schedule
}

// DefaultRetryPolicy retries a 503 once after one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		RetryableStatusCodes: []int{http.StatusServiceUnavailable},
		MaxAttempts:          2,
		Backoff:              backoff.Fixed(DefaultRetryDelay),
	}
}

func (p RetryPolicy) retryable(code int) bool {
	for _, c := range p.RetryableStatusCodes {
		if c == code {
			return true
		}
	}
	return false
}

// Interceptor returns the response interceptor enforcing the policy. The
// delay is waited on the calling goroutine, so it only holds up its own call.
func (p RetryPolicy) Interceptor() Interceptor {
	return func(ctx context.Context, req *Request, resp *Response, reissue Reissue) (*Response, error) {
		attempt := 1
		for p.retryable(resp.StatusCode) {
			if attempt >= p.MaxAttempts {
				if attempt == 1 {
					return resp, nil
				}
				return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, newStatusError(req, resp))
			}
			if err := backoff.Sleep(ctx, p.Backoff.Delay(attempt-1)); err != nil {
				return nil, err
			}
			next, err := reissue(ctx)
			if err != nil {
				return nil, err
			}
			resp = next
			attempt++
		}
		return resp, nil
	}
}
