package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Sriram-PR/zsml-scraper/pkg/utils"
)

// RawContent is a decoded (UTF-8) response body
type RawContent string

// Request describes one page retrieval.
// Form is the POST payload and must be nil for GET.
type Request struct {
	URL    string
	Method string
	Form   url.Values
}

// Get builds a GET request for a detail page
func Get(pageURL string) Request {
	return Request{URL: pageURL, Method: http.MethodGet}
}

// Post builds a form POST request, used for the search endpoint
func Post(pageURL string, form url.Values) Request {
	return Request{URL: pageURL, Method: http.MethodPost, Form: form}
}

// Validate checks method/payload consistency
func (r Request) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("%w: empty URL", utils.ErrInvalidRequest)
	}
	switch r.Method {
	case http.MethodGet:
		if r.Form != nil {
			return fmt.Errorf("%w: GET %s carries a form payload", utils.ErrInvalidRequest, r.URL)
		}
	case http.MethodPost:
		if r.Form == nil {
			return fmt.Errorf("%w: POST %s without a form payload", utils.ErrInvalidRequest, r.URL)
		}
	default:
		return fmt.Errorf("%w: unsupported method '%s'", utils.ErrInvalidRequest, r.Method)
	}
	return nil
}

// PageFetcher retrieves one page. Implementations make no promise about retries.
type PageFetcher interface {
	Fetch(ctx context.Context, req Request) (RawContent, error)
}

// StatusError is returned for non-2xx responses. It unwraps to the matching
// sentinel (ErrClientHTTPError, ErrServerHTTPError or ErrOtherHTTPError).
type StatusError struct {
	URL        string
	StatusCode int
	sentinel   error
}

func newStatusError(pageURL string, code int) *StatusError {
	var sentinel error
	switch {
	case code >= 400 && code < 500:
		sentinel = utils.ErrClientHTTPError
	case code >= 500:
		sentinel = utils.ErrServerHTTPError
	default:
		sentinel = utils.ErrOtherHTTPError
	}
	return &StatusError{URL: pageURL, StatusCode: code, sentinel: sentinel}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: status %s %s for %s", e.sentinel, strconv.Itoa(e.StatusCode), http.StatusText(e.StatusCode), e.URL)
}

func (e *StatusError) Unwrap() error {
	return e.sentinel
}
