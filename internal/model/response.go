package model

// APIResponse is the envelope every endpoint answers with. Message carries the
// acknowledgement of actions that return no resource.
type APIResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *Meta     `json:"meta,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Meta describes one page of a skip/limit listing and the tenant it was read from.
type Meta struct {
	Tenant     string `json:"tenant,omitempty"`
	Skip       int    `json:"skip"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	Total      int    `json:"total"`
	TotalPages int    `json:"total_pages"`
}
