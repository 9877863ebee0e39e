package httputil

import (
	"time"

	"github.com/go-resty/resty/v2"
)

// NewRestyClient creates a resty client with the shared defaults every
// outbound API client starts from.
func NewRestyClient(baseURL string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
}
