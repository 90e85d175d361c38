package fetchkit

import "errors"

// Typed fetch errors the Scheduler and adapters branch on with
// errors.Is.
var (
	// ErrRateLimited means the upstream returned 429 or a throttling signal.
	ErrRateLimited = errors.New("fetchkit: rate limited")
	// ErrAntiBotBlocked means the response matched an anti-bot fingerprint:
	// any 403 or 503 status, or a body containing a known marker (captcha
	// page, "just a moment", ...).
	ErrAntiBotBlocked = errors.New("fetchkit: anti-bot block detected")
	// ErrDecode means the response body could not be decompressed under
	// any of the attempted content-encodings.
	ErrDecode = errors.New("fetchkit: decode failure")
	// ErrTransport means a network-level failure (DNS, dial, TLS, timeout).
	ErrTransport = errors.New("fetchkit: transport failure")
)
