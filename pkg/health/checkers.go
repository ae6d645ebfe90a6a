package health

import (
	"context"
	"net/http"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck returns a CheckFunc that fails when the number of
// goroutines exceeds threshold. Useful as a liveness check against leaks.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if count := runtime.NumGoroutine(); count > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", count, threshold)
		}
		return nil
	}
}

// HTTPGetCheck returns a CheckFunc that issues a GET to url and fails unless
// the response status is 2xx. Useful as a readiness check on an upstream
// service's own health endpoint.
func HTTPGetCheck(url string) CheckFunc {
	client := &http.Client{
		// Probes should not follow redirects; a redirecting health
		// endpoint is a misconfiguration worth surfacing.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return errors.Wrap(err, "build request")
		}
		resp, err := client.Do(req)
		if err != nil {
			return errors.Wrap(err, "request")
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return errors.Errorf("unexpected status %d from %s", resp.StatusCode, url)
		}
		return nil
	}
}
