// Package reliability classifies failures so the UI knows whether a manual
// retry is worth offering. The gateway never retries automatically: token
// issuance mints a fresh identity per call and is not idempotent-safe.
package reliability

import "github.com/dterzis/voicegate/internal/fault"

// IsRetryableCode reports whether the UI should offer a retry for a given
// error code. Authentication and authorization failures need a fresh
// credential, not a retry; transport-level failures may succeed on a new
// session attempt.
func IsRetryableCode(code fault.Code) bool {
	switch code {
	case fault.CodeCreateSessionFailed,
		fault.CodeNetworkError,
		fault.CodeConnectionError,
		fault.CodeSaveTranscriptFailed:
		return true
	default:
		return false
	}
}
