package models

import (
	"fmt"
	"net/http"

	"github.com/mohammad-safakhou/adaptwatch/internal/failure"
)

// Do sends req and classifies failures: network errors, 429 and 5xx are
// transient, any other non-2xx status is permanent. The caller owns the
// response body on success.
func Do(client *http.Client, op string, req *http.Request) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, failure.Transient(op, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	_ = resp.Body.Close()
	statusErr := fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, failure.Transient(op, statusErr)
	}
	return nil, statusErr
}
