package model

import "errors"

var (
	// Authentication failures are reported identically regardless of cause.
	ErrInvalidCredentials = errors.New("invalid credentials or inactive account")

	// Token related errors. Expired, malformed, wrongly typed and forged tokens
	// all collapse into ErrTokenInvalid.
	ErrTokenInvalid  = errors.New("invalid or expired token")
	ErrTokenNotFound = errors.New("token not found")

	// Permission/Access related errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Datastore outcomes
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("resource conflict")

	// Tenant related errors
	ErrInvalidTenant = errors.New("invalid tenant namespace")
	ErrNoTenantScope = errors.New("no tenant scope bound to context")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
