package fetcher

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	defaultConnectTimeout = 3 * time.Second
	defaultReadTimeout    = 30 * time.Second
)

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: defaultConnectTimeout}).DialContext,
		},
	}
}

// getJSON performs a GET and returns the parsed body. Non-200 statuses map
// onto the upstream failure taxonomy; transport errors are transient.
func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return gjson.Result{}, transientErr(err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return gjson.Result{}, transientErr(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, transientErr(err)
	}

	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, httpStatusErr(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return gjson.ParseBytes(body), nil
}

// pause sleeps for the given duration or until the context is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return transientErr(ctx.Err())
	case <-timer.C:
		return nil
	}
}
