// Package classify provides a closed error taxonomy for remote tool calls.
// Errors crossing the remote API boundary are wrapped into APIError, so the
// classifier matches a tagged variant instead of probing loosely-typed fields.
package classify

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Category of a classified error.
type Category int

const (
	// Fatal is the default for unrecognized errors, treated as non-retryable.
	Fatal Category = iota
	Timeout
	NetworkTransient
	RateLimited
	ServerError
	AuthExpired
)

func (c Category) String() string {
	switch c {
	case Timeout:
		return "timeout"
	case NetworkTransient:
		return "network_transient"
	case RateLimited:
		return "rate_limited"
	case ServerError:
		return "server_error"
	case AuthExpired:
		return "auth_expired"
	default:
		return "fatal"
	}
}

// ClassifiedError is the classification of a single error instance.
type ClassifiedError struct {
	Retryable bool
	Category  Category
}

// APIError is the tagged error variant produced at the remote API call boundary.
// StatusCode carries the HTTP status when known, Code carries an OS-level
// network error code (e.g. ECONNRESET) when known.
type APIError struct {
	Message    string
	StatusCode int
	Code       string

	// AuthRetried marks that credentials were already refreshed for the
	// current logical tool invocation; a second 401 is then terminal.
	AuthRetried bool
}

func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError creates an APIError with an HTTP status.
func NewAPIError(status int, message string) *APIError {
	return &APIError{StatusCode: status, Message: message}
}

// NewNetworkError creates an APIError with an OS-level error code.
func NewNetworkError(code, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

// retryableStatuses are transient HTTP statuses worth retrying.
var retryableStatuses = map[int]bool{
	429: true,
	502: true,
	503: true,
	504: true,
	507: true,
	520: true,
	521: true,
	522: true,
	523: true,
	524: true,
}

// retryableCodes are OS-level network error codes worth retrying.
var retryableCodes = map[string]bool{
	"ECONNRESET":      true,
	"ENOTFOUND":       true,
	"ECONNREFUSED":    true,
	"ETIMEDOUT":       true,
	"ESOCKETTIMEDOUT": true,
	"EHOSTUNREACH":    true,
	"EPIPE":           true,
	"EAI_AGAIN":       true,
}

// retryablePhrases are matched against the lowercased error message,
// paired with the category the phrase implies.
var retryablePhrases = []struct {
	phrase   string
	category Category
}{
	{"gateway timeout", Timeout},
	{"timeout", Timeout},
	{"timed out", Timeout},
	{"rate limit", RateLimited},
	{"server busy", RateLimited},
	{"service unavailable", ServerError},
	{"bad gateway", ServerError},
	{"connection reset", NetworkTransient},
	{"connection refused", NetworkTransient},
	{"socket hang up", NetworkTransient},
	{"dns lookup failed", NetworkTransient},
	{"getaddrinfo", NetworkTransient},
	{"index not available", ServerError},
	{"search index updating", ServerError},
	{"deadlock", ServerError},
	{"database is locked", ServerError},
	{"database lock", ServerError},
}

// Classify derives a ClassifiedError from any error. It is total and
// deterministic: identical input always yields identical output, and
// unrecognized errors fail closed as non-retryable Fatal.
func Classify(err error) ClassifiedError {
	if err == nil {
		return ClassifiedError{}
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode != 0 {
			return classifyStatus(apiErr)
		}
		if apiErr.Code != "" {
			return classifyCode(apiErr.Code)
		}
	}

	return classifyMessage(err.Error())
}

func classifyStatus(apiErr *APIError) ClassifiedError {
	status := apiErr.StatusCode
	switch {
	case status == 401:
		// retryable exactly once, after a credential refresh
		return ClassifiedError{Retryable: !apiErr.AuthRetried, Category: AuthExpired}
	case retryableStatuses[status]:
		if status == 429 {
			return ClassifiedError{Retryable: true, Category: RateLimited}
		}
		if status == 504 {
			return ClassifiedError{Retryable: true, Category: Timeout}
		}
		return ClassifiedError{Retryable: true, Category: ServerError}
	case status >= 500:
		return ClassifiedError{Retryable: false, Category: ServerError}
	default:
		return ClassifiedError{Retryable: false, Category: Fatal}
	}
}

func classifyCode(code string) ClassifiedError {
	if !retryableCodes[code] {
		return ClassifiedError{Retryable: false, Category: Fatal}
	}
	switch code {
	case "ETIMEDOUT", "ESOCKETTIMEDOUT":
		return ClassifiedError{Retryable: true, Category: Timeout}
	default:
		return ClassifiedError{Retryable: true, Category: NetworkTransient}
	}
}

func classifyMessage(msg string) ClassifiedError {
	lower := strings.ToLower(msg)
	for code := range retryableCodes {
		if strings.Contains(msg, code) {
			return classifyCode(code)
		}
	}
	for _, m := range retryablePhrases {
		if strings.Contains(lower, m.phrase) {
			return ClassifiedError{Retryable: true, Category: m.category}
		}
	}
	return ClassifiedError{Retryable: false, Category: Fatal}
}

// Hint returns a user-actionable remediation hint for the error,
// or an empty string when the failure mode is not recognized.
func Hint(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		switch {
		case apiErr.StatusCode == 401:
			return "re-authenticate via the configured login flow"
		case apiErr.StatusCode == 403:
			return "check permissions and OAuth scopes"
		case apiErr.StatusCode >= 500:
			return "remote server issue, retry later"
		}
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out"):
		return "the remote instance may be slow, consider a longer timeout"
	case strings.Contains(lower, "network") || strings.Contains(lower, "connection"):
		return "check network connectivity"
	}
	return ""
}
