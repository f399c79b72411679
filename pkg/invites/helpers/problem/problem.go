package problem

import "fmt"

type InvalidParam struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// APIError implementeert error + Problem Details (RFC 7807). Message is serialised
// as "error" so clients can always read a single human-readable reason.
type APIError struct {
	Type          string         `json:"type"`
	Title         string         `json:"title"`
	Status        int            `json:"status"`
	Message       string         `json:"error"`
	Slot          string         `json:"slot,omitempty"`
	InvalidParams []InvalidParam `json:"invalidParams,omitempty"`
}

func (e APIError) Error() string { return e.Message }

func statusType(status int) string {
	return fmt.Sprintf("https://developer.mozilla.org/en-US/docs/Web/HTTP/Reference/Status/%d", status)
}

// NewBadRequest is a ValidationError: bad id, missing member, disallowed key.
func NewBadRequest(detail string, params ...InvalidParam) APIError {
	return APIError{
		Type:          statusType(400),
		Title:         "Bad Request",
		Status:        400,
		Message:       detail,
		InvalidParams: params,
	}
}

func NewNotFound(detail string) APIError {
	return APIError{
		Type:    statusType(404),
		Title:   "Not Found",
		Status:  404,
		Message: detail,
	}
}

// NewSizeExceeded rejects a relayed member that is over the relay ceiling.
func NewSizeExceeded(slot string, sizeMB, limitMB float64) APIError {
	return APIError{
		Type:   statusType(413),
		Title:  "Payload Too Large",
		Status: 413,
		Message: fmt.Sprintf(
			"%s is %.1f MB, above the %.1f MB upload limit; re-encode it (lower resolution or JPEG quality) and upload again",
			slot, sizeMB, limitMB,
		),
		Slot: slot,
	}
}

// NewUpstreamError reports a failing storage call; callers may retry.
func NewUpstreamError(detail string) APIError {
	return APIError{
		Type:    statusType(502),
		Title:   "Bad Gateway",
		Status:  502,
		Message: detail,
	}
}

func NewAllocationExhausted(detail string) APIError {
	return APIError{
		Type:    statusType(503),
		Title:   "Service Unavailable",
		Status:  503,
		Message: detail,
	}
}

// NewConfigurationError signals a deployment without storage credentials.
func NewConfigurationError(detail string) APIError {
	return APIError{
		Type:    statusType(500),
		Title:   "Configuration Error",
		Status:  500,
		Message: detail,
	}
}

func NewInternalServerError(detail string) APIError {
	return APIError{
		Type:    statusType(500),
		Title:   "Internal Server Error",
		Status:  500,
		Message: detail,
	}
}
