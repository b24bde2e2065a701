package model

// Problem is an application/problem+json error body
type Problem struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Status   int               `json:"status"`
	Instance string            `json:"instance"`
	Code     string            `json:"code"`
	TraceID  string            `json:"traceId"`
	Errors   map[string]string `json:"errors,omitempty"`
}

// Stable problem codes
const (
	CodeValidationFailed   = "validation_failed"
	CodeNotFound           = "not_found"
	CodeConflict           = "conflict"
	CodeExpired            = "expired"
	CodeUnauthorized       = "unauthorized"
	CodeInvalidCredentials = "invalid_credentials"
	CodeTooManyRequests    = "too_many_requests"
	CodeInternalError      = "internal_error"
)
