// File: errors.go
package captcha

import "github.com/pkg/errors"

// Verification failures are deliberately coarse towards the end user (the
// caller shows pass/fail only) but distinguishable for logging and tests.
var (
	// ErrMalformedToken means the challenge id string did not parse.
	ErrMalformedToken = errors.New("captcha: malformed challenge id")
	// ErrInvalidSignature means no MAC candidate matched: the token was
	// forged, tampered with, or minted under a different secret.
	ErrInvalidSignature = errors.New("captcha: invalid signature")
	// ErrExpired means the token's embedded timestamp is older than the TTL.
	ErrExpired = errors.New("captcha: challenge expired")
	// ErrNoSuchChallenge means the registry holds no live budget for the id.
	// Exhausted and never-registered/expired are intentionally the same error.
	ErrNoSuchChallenge = errors.New("captcha: no live challenge for this id")
	// ErrConfigurationInvalid means construction-time options are out of range.
	ErrConfigurationInvalid = errors.New("captcha: invalid configuration")
	// ErrCodecFailure means image decoding or encoding failed.
	ErrCodecFailure = errors.New("captcha: image codec failure")
)
