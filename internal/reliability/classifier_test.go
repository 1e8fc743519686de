package reliability

import (
	"testing"

	"github.com/dterzis/voicegate/internal/fault"
)

func TestIsRetryableCode(t *testing.T) {
	cases := []struct {
		code fault.Code
		want bool
	}{
		{fault.CodeCreateSessionFailed, true},
		{fault.CodeNetworkError, true},
		{fault.CodeConnectionError, true},
		{fault.CodeSaveTranscriptFailed, true},
		{fault.CodeAuthenticationRequired, false},
		{fault.CodeForbidden, false},
		{fault.CodeNotFound, false},
		{fault.CodeInvalidRequest, false},
		{fault.CodeInternal, false},
	}
	for _, tc := range cases {
		if got := IsRetryableCode(tc.code); got != tc.want {
			t.Errorf("IsRetryableCode(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}
}
