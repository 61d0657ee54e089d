package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	OK                     int = 200
	BAD_REQUEST            int = 400
	UNAUTHORIZED           int = 401
	FORBIDDEN              int = 403
	DATA_NOT_FOUND         int = 404
	METHOD_NOT_ALLOWED     int = 405
	UNSUPPORTED_MEDIA_TYPE int = 415
	RATE_LIMIT_EXCEEDED    int = 429
	INTERNAL_SERVER_ERROR  int = 500
	BAD_GATEWAY            int = 502
	SERVICE_UNAVAILABLE    int = 503
	GATEWAY_TIMEOUT        int = 504
)

var messages = map[int]string{
	OK:                     "OK",
	BAD_REQUEST:            "Bad request",
	UNAUTHORIZED:           "Unauthorized",
	FORBIDDEN:              "Forbidden",
	DATA_NOT_FOUND:         "Data not found",
	METHOD_NOT_ALLOWED:     "Method not allowed",
	UNSUPPORTED_MEDIA_TYPE: "Unsupported media type",
	RATE_LIMIT_EXCEEDED:    "Rate limit exceeded",
	INTERNAL_SERVER_ERROR:  "Internal server error",
	BAD_GATEWAY:            "Bad gateway",
	SERVICE_UNAVAILABLE:    "Service unavailable",
	GATEWAY_TIMEOUT:        "Gateway timeout",
}

var (
	// The rate limiter did not let the request through
	ErrRequestNotAllowed = errors.New("request not allowed by rate limiter")
	// The upstream answered but not with a 200
	ErrUnexpectedStatus = errors.New("unexpected status code")
)

type Proxy struct {
	header      map[string]string
	client      *http.Client
	rateLimiter *RateLimiter
}

func NewProxy(header map[string]string, timeout time.Duration, rateLimiter *RateLimiter) *Proxy {
	return &Proxy{header, &http.Client{Timeout: timeout}, rateLimiter}
}

// Make a request to the provided url, indicating if it is vital.
// The request will be performed depending on the status of the rate limiter.
// Any outcome other than a 200 with a readable body is an error
func (proxy *Proxy) Request(ctx context.Context, url string, vital bool) ([]byte, error) {

	// ask for permission to execute the request
	// and wait if necessary
	if proxy.rateLimiter != nil && !proxy.rateLimiter.Allowed(ctx, vital) {
		return nil, ErrRequestNotAllowed
	}

	// Create the request and add the header
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request for url %s: %w", url, err)
	}
	for key, value := range proxy.header {
		request.Header.Set(key, value)
	}

	// Perform the request
	res, err := proxy.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("could not perform request: %w", err)
	}
	defer res.Body.Close()

	// Check if the status of the request is understood
	message, ok := messages[res.StatusCode]
	if !ok {
		message = "Not understood"
	}
	log.Debug().Int("status", res.StatusCode).Str("url", url).Msg(message)

	switch res.StatusCode {
	case OK:
		// Read the response
		stream, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, fmt.Errorf("could not extract the response for url %s: %w", url, err)
		}
		return stream, nil
	case RATE_LIMIT_EXCEEDED:
		if proxy.rateLimiter != nil {
			proxy.rateLimiter.ReceivedRateLimit()
		}
		return nil, fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, res.StatusCode, message)
	default:
		return nil, fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, res.StatusCode, message)
	}
}
