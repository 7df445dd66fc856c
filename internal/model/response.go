package model

// ListResponse is the standard envelope for list endpoints, wrapping results
// in a "resource" array with a count.
type ListResponse struct {
	Resource any           `json:"resource"`
	Meta     *ResponseMeta `json:"meta,omitempty"`
}

// ResponseMeta carries list metadata.
type ResponseMeta struct {
	Count int `json:"count"`
}

// MessageResponse is returned by endpoints that only acknowledge an action.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the standard envelope for error responses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned by the API.
type ErrorDetail struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}
