package responses

// SuccessEnvelope wraps every 2xx body.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public shape of a failed request. Code is one of the
// pkg/errors codes, e.g. "PICKUP_SLOT_INVALID".
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
	// RequestID matches the X-Request-Id response header so clients can quote it.
	RequestID string `json:"requestId,omitempty"`
}
