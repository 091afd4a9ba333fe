// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are stable, lowercase snake_case strings returned in the `code` field
// of ErrorResponse. Clients branch on them; the message is for display only.
//
// A verification that fails upstream (quota, safety block, network) is NOT an
// HTTP error: it is a 200 carrying a verdict with flag "Error". The codes
// below cover malformed requests and infrastructure failures only.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "claim_too_long",
//	  "message": "claim too long"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Verification input
	ErrCodeEmptyClaim    = "empty_claim"
	ErrCodeClaimTooLong  = "claim_too_long"
	ErrCodeInvalidURL    = "invalid_url"
	ErrCodeInvalidImage  = "invalid_image"
	ErrCodeImageTooLarge = "image_too_large"
	ErrCodeSurfaceNeeded = "surface_required"

	// Settings
	ErrCodeInvalidCredential = "invalid_credential"
	ErrCodeNoCredential      = "no_credential"
	ErrCodeConfirmRequired   = "confirm_required"

	// Storage / pipeline failures
	ErrCodeVerifyFailed  = "verify_failed"
	ErrCodeHistoryFailed = "history_failed"
	ErrCodeStorageFailed = "storage_failed"
)
