package maps

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("Code %d: %s", e.Code, e.Body)
}

// apiStatusError is a 200 response whose body reports a failure status.
type apiStatusError struct {
	Status  string
	Message string
}

func (e *apiStatusError) Error() string {
	if e.Message == "" {
		return "maps api status " + e.Status
	}
	return fmt.Sprintf("maps api status %s: %s", e.Status, e.Message)
}

func (e *apiStatusError) retryable() bool {
	return e.Status == "OVER_QUERY_LIMIT" || e.Status == "UNKNOWN_ERROR"
}

func (g *GoogleMapsProvider) newRequest(ctx context.Context, path string, params url.Values) (*http.Request, error) {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("key", g.apiKey)
	if g.language != "" {
		q.Set("language", g.language)
	}
	if g.region != "" {
		q.Set("region", g.region)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (g *GoogleMapsProvider) do(req *http.Request) (*http.Response, error) {
	resp, err := g.session.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &httpStatusError{
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(b)),
		}
	}
	return resp, nil
}

// getJSON issues a GET and decodes the body with decode, retrying transient
// failures (network errors, 429/5xx, quota statuses) with exponential backoff while
// respecting context cancellation.
func (g *GoogleMapsProvider) getJSON(
	ctx context.Context,
	path string,
	params url.Values,
	decode func(io.Reader) error,
) error {
	const maxAttempts = 4
	backoff := g.backoff

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		req, err := g.newRequest(ctx, path, params)
		if err != nil {
			return errors.Wrap(err, "make request")
		}

		resp, err := g.do(req)
		if err == nil {
			err = decode(resp.Body)
			resp.Body.Close()
			if err == nil {
				return nil
			}
		}
		lastErr = err

		if !retryable(err) || attempt == maxAttempts {
			return lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
	}

	return lastErr
}

func retryable(err error) bool {
	var he *httpStatusError
	if errors.As(err, &he) {
		switch he.Code {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}

	var ae *apiStatusError
	if errors.As(err, &ae) {
		return ae.retryable()
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
