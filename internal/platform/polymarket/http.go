package polymarket

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"polyarb/internal/domain"
)

const (
	// connectTimeout bounds TCP connection establishment; totalTimeout
	// bounds the whole request including body read. A stalled endpoint
	// must not stall the rest of the system.
	connectTimeout = 5 * time.Second
	totalTimeout   = 10 * time.Second
)

// newHTTPClient builds the shared HTTP client with separate connect and
// total timeouts and connection keep-alive.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: totalTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   connectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 50,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
