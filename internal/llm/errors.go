package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

var (
	// ErrAborted marks a call the operator chose to abort during recovery.
	ErrAborted = errors.New("aborted by operator")
	// ErrRetriesExhausted marks a call the automatic policy stopped retrying.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrUnparseable is returned when a response stays invalid JSON after repair and one retry.
	ErrUnparseable = errors.New("unparseable LLM response")
)

// SwitchProviderError asks the runtime to re-dispatch the same request to
// another backend.
type SwitchProviderError struct {
	From  Kind
	To    Kind
	Cause error
}

func (e *SwitchProviderError) Error() string {
	return fmt.Sprintf("switch provider %s -> %s: %v", e.From, e.To, e.Cause)
}

func (e *SwitchProviderError) Unwrap() error { return e.Cause }

// ErrorClass is the only backend condition the runtime inspects.
type ErrorClass int

const (
	ClassNone ErrorClass = iota
	ClassRateLimit
	ClassQuota
)

func (c ErrorClass) String() string {
	switch c {
	case ClassRateLimit:
		return "rate limit"
	case ClassQuota:
		return "quota/billing"
	default:
		return "none"
	}
}

// Classify decides whether err is a rate-limit or quota/billing signal,
// first by HTTP status and then by message.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}

	status := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	var httpErr *HTTPError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.Code
	case errors.As(err, &apiErrPtr):
		status = apiErrPtr.Code
	case errors.As(err, &httpErr):
		status = httpErr.StatusCode
	}
	switch status {
	case http.StatusTooManyRequests:
		return ClassRateLimit
	case http.StatusPaymentRequired:
		return ClassQuota
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"insufficient", "credits", "billing"} {
		if strings.Contains(msg, s) {
			return ClassQuota
		}
	}
	for _, s := range []string{"rate limit", "quota", "resource_exhausted"} {
		if strings.Contains(msg, s) {
			return ClassRateLimit
		}
	}
	return ClassNone
}

// IsQuotaError reports whether err is a quota/billing failure the operator
// did not abort.
func IsQuotaError(err error) bool {
	return !errors.Is(err, ErrAborted) && Classify(err) == ClassQuota
}
