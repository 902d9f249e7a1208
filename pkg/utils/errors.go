package utils

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrNetwork          = errors.New("network error")                    // Dial, TLS, timeout, reset before a status was read
	ErrRetryFailed      = errors.New("request failed after all retries") // Wraps the last underlying error
	ErrClientHTTPError  = errors.New("client HTTP error (4xx)")          // Wraps original status
	ErrServerHTTPError  = errors.New("server HTTP error (5xx)")          // Wraps original status
	ErrOtherHTTPError   = errors.New("other HTTP error (non-2xx)")       // Wraps original status
	ErrInvalidRequest   = errors.New("invalid fetch request")
	ErrRequestCreation  = errors.New("failed to create HTTP request")
	ErrResponseBodyRead = errors.New("failed to read response body")
	ErrParsing          = errors.New("parsing error") // Wraps specific parsing error (HTML, URL, CSV)
	ErrFirstPage        = errors.New("first results page unavailable")
	ErrFilesystem       = errors.New("filesystem error") // Wraps os errors
	ErrExport           = errors.New("result export failed")
	ErrDatabase         = errors.New("database error") // Wraps badger errors
	ErrConfigValidation = errors.New("configuration validation error")
)

// IsNetworkFailure reports whether err belongs to the fetch-side failure family
// (transport error or non-2xx status), as opposed to a parse failure.
func IsNetworkFailure(err error) bool {
	return errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrRetryFailed) ||
		errors.Is(err, ErrClientHTTPError) ||
		errors.Is(err, ErrServerHTTPError) ||
		errors.Is(err, ErrOtherHTTPError) ||
		errors.Is(err, ErrResponseBodyRead)
}

// CategorizeError maps an error to a predefined category string for logging and the run ledger.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrFirstPage):
		return "Fatal_FirstPage"
	case errors.Is(err, ErrRetryFailed):
		switch {
		case errors.Is(err, ErrServerHTTPError):
			return "RetryFailed_HTTPServer"
		case errors.Is(err, ErrClientHTTPError):
			return "RetryFailed_HTTPClient"
		case errors.Is(err, ErrNetwork):
			if isTimeout(err) {
				return "RetryFailed_NetworkTimeout"
			}
			return "RetryFailed_NetworkOther"
		}
		return "RetryFailed_Unknown"
	case errors.Is(err, ErrClientHTTPError):
		errMsg := err.Error()
		if strings.Contains(errMsg, " 404 ") {
			return "HTTP_404"
		}
		if strings.Contains(errMsg, " 403 ") {
			return "HTTP_403"
		}
		if strings.Contains(errMsg, " 429 ") {
			return "HTTP_429"
		}
		return "HTTP_4xx"
	case errors.Is(err, ErrServerHTTPError):
		return "HTTP_5xx"
	case errors.Is(err, ErrOtherHTTPError):
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrNetwork):
		if isTimeout(err) {
			return "Network_Timeout"
		}
		lower := strings.ToLower(err.Error())
		switch {
		case strings.Contains(lower, "connection refused"):
			return "Network_ConnectionRefused"
		case strings.Contains(lower, "no such host"):
			return "Network_DNSLookup"
		case strings.Contains(lower, "tls") || strings.Contains(lower, "certificate"):
			return "Network_TLS"
		case strings.Contains(lower, "reset by peer"):
			return "Network_ConnectionReset"
		}
		return "Network_Other"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
	case errors.Is(err, ErrInvalidRequest):
		return "Internal_InvalidRequest"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrParsing):
		errMsg := err.Error()
		if strings.Contains(errMsg, "URL") {
			return "Content_ParsingURL"
		}
		if strings.Contains(errMsg, "HTML") {
			return "Content_ParsingHTML"
		}
		if strings.Contains(errMsg, "CSV") {
			return "Content_ParsingCSV"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrExport):
		return "Output_Export"
	case errors.Is(err, ErrFilesystem):
		if errors.Is(err, os.ErrPermission) {
			return "Filesystem_Permission"
		}
		if errors.Is(err, os.ErrNotExist) {
			return "Filesystem_NotExist"
		}
		return "Filesystem_Other"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	}

	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}
	if isTimeout(err) {
		return "Network_Timeout"
	}
	return "Unknown"
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded")
}
