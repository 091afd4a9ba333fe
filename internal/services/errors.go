// Package services holds the verification pipeline: the Verifier that turns
// claims into verdicts, the Dispatcher that pushes loading and final states
// to UI surfaces, and Settings for the stored credential and flags.
//
// The errors below are returned for invalid input only. A verification that
// fails upstream is not an error: it yields a verdict with FlagError.
// Handlers translate these values into HTTP status codes.
package services

import "errors"

// Claim validation.
var (
	// ErrEmptyClaim is returned when the claim text is blank.
	ErrEmptyClaim = errors.New("claim is empty")

	// ErrClaimTooLong is returned when the claim exceeds the configured
	// maximum number of runes.
	ErrClaimTooLong = errors.New("claim too long")

	// ErrInvalidURL is returned for a page or image URL that is not an
	// absolute http(s) URL.
	ErrInvalidURL = errors.New("url must be absolute http or https")
)

// Image validation.
var (
	// ErrInvalidImage is returned when uploaded bytes are empty or are not an
	// image.
	ErrInvalidImage = errors.New("image is empty or not an image")

	// ErrImageTooLarge is returned when uploaded bytes exceed the limit.
	ErrImageTooLarge = errors.New("image too large")
)

// Credential management.
var (
	// ErrCredentialFormat is returned when a cloud API key is too short to be
	// genuine.
	ErrCredentialFormat = errors.New("api key is malformed")

	// ErrNoCredential is returned when a key test is requested but no key is
	// stored or configured.
	ErrNoCredential = errors.New("no api key configured")
)
