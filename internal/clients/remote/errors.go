package remote

import (
	"fmt"
	"net/http"

	"github.com/aristath/autoinvest/internal/domain"
)

const maxErrorBody = 500

// StatusError is a non-2xx response.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func newStatusError(resp *http.Response, body []byte) *StatusError {
	s := string(body)
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: s}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.Code, e.Status)
}

// Unwrap marks server errors and throttling as transient.
func (e *StatusError) Unwrap() error {
	if e.Code >= 500 || e.Code == http.StatusTooManyRequests {
		return domain.ErrTransient
	}
	return nil
}
