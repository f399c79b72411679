package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient is shared by every upstream fetch; it carries no per-request state.
var HTTPClient = &http.Client{Timeout: 60 * time.Second}

// StatusError is returned for a non-2xx upstream response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s answered %d", e.URL, e.Status)
}

// Get fetches url. On success the caller owns the response body.
func Get(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	if client == nil {
		client = HTTPClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{URL: url, Status: resp.StatusCode}
	}
	return resp, nil
}
