package rtc

import (
	"strings"
	"testing"
	"time"
)

const (
	testAPIKey    = "APIabcdef1234567"
	testAPISecret = "secret-secret-secret-secret-1234"
)

func TestRoomName(t *testing.T) {
	if got := RoomName("conv-1"); got != "voice-session-conv-1" {
		t.Fatalf("RoomName() = %q", got)
	}
}

func TestParticipantIdentityIsFreshPerCall(t *testing.T) {
	a := ParticipantIdentity("user-1")
	b := ParticipantIdentity("user-1")
	if !strings.HasPrefix(a, "user-1-") || !strings.HasPrefix(b, "user-1-") {
		t.Fatalf("identities %q, %q should carry the user prefix", a, b)
	}
	if a == b {
		t.Fatalf("identity reused across session attempts: %q", a)
	}
}

func TestIssueAndDecode(t *testing.T) {
	issuer := NewTokenIssuer(testAPIKey, testAPISecret, "wss://rtc.example.com", 30*time.Minute)

	token, err := issuer.Issue("user-1-ab12cd34", "user-1", "voice-session-conv-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if token == "" {
		t.Fatalf("Issue() returned empty token")
	}

	grant, err := issuer.Decode(token)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if grant.Room != "voice-session-conv-1" {
		t.Fatalf("grant room = %q, want voice-session-conv-1", grant.Room)
	}
	if grant.Identity != "user-1-ab12cd34" {
		t.Fatalf("grant identity = %q", grant.Identity)
	}
}

func TestIssueRejectsBlankArguments(t *testing.T) {
	issuer := NewTokenIssuer(testAPIKey, testAPISecret, "wss://rtc.example.com", time.Minute)
	if _, err := issuer.Issue("", "name", "room"); err == nil {
		t.Fatalf("Issue() with empty identity should fail")
	}
	if _, err := issuer.Issue("id", "name", "  "); err == nil {
		t.Fatalf("Issue() with blank room should fail")
	}
}

func TestTTLClampedToOneHour(t *testing.T) {
	issuer := NewTokenIssuer(testAPIKey, testAPISecret, "wss://rtc.example.com", 6*time.Hour)
	if got := issuer.TTL(); got != time.Hour {
		t.Fatalf("TTL() = %v, want clamp to %v", got, time.Hour)
	}
	issuer = NewTokenIssuer(testAPIKey, testAPISecret, "wss://rtc.example.com", 0)
	if got := issuer.TTL(); got != time.Hour {
		t.Fatalf("TTL() with zero = %v, want %v", got, time.Hour)
	}
}

func TestVerifyRoomClaim(t *testing.T) {
	issuer := NewTokenIssuer(testAPIKey, testAPISecret, "wss://rtc.example.com", time.Minute)
	token, err := issuer.Issue("user-1-ab12cd34", "user-1", "voice-session-conv-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if err := VerifyRoomClaim(token, "voice-session-conv-1"); err != nil {
		t.Fatalf("VerifyRoomClaim() error = %v, want match", err)
	}
	if err := VerifyRoomClaim(token, "voice-session-other"); err == nil {
		t.Fatalf("VerifyRoomClaim() accepted a mismatched room")
	}
	if err := VerifyRoomClaim("not-a-jwt", "voice-session-conv-1"); err == nil {
		t.Fatalf("VerifyRoomClaim() accepted garbage")
	}
}
