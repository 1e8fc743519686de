// Package rtc mints and verifies access tokens for the managed realtime
// transport (LiveKit). A token grants join, publish, subscribe and
// data-publish on exactly one room and expires within an hour.
package rtc

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/livekit/protocol/auth"

	"github.com/dterzis/voicegate/internal/fault"
)

// RoomPrefix namespaces all voice call rooms.
const RoomPrefix = "voice-session-"

// maxTTL is the hard cap on token validity regardless of configuration.
const maxTTL = time.Hour

// RoomName derives the deterministic room name for a conversation, so a
// reconnect for the same conversation rejoins the same room.
func RoomName(conversationID string) string {
	return RoomPrefix + conversationID
}

// ParticipantIdentity generates a fresh identity for one session attempt.
// Identities are never reused across sessions; the transcription relay
// classifies speakers by identity equality and must not see collisions.
func ParticipantIdentity(userID string) string {
	return userID + "-" + uuid.NewString()[:8]
}

// Grant is the decoded room access carried by a minted token.
type Grant struct {
	Room      string
	Identity  string
	ExpiresAt time.Time
}

// TokenIssuer mints signed room access tokens.
type TokenIssuer struct {
	apiKey    string
	apiSecret string
	serverURL string
	ttl       time.Duration
}

func NewTokenIssuer(apiKey, apiSecret, serverURL string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 || ttl > maxTTL {
		ttl = maxTTL
	}
	return &TokenIssuer{apiKey: apiKey, apiSecret: apiSecret, serverURL: serverURL, ttl: ttl}
}

// ServerURL is the realtime transport endpoint clients connect to.
func (i *TokenIssuer) ServerURL() string { return i.serverURL }

// TTL is the validity window applied to minted tokens.
func (i *TokenIssuer) TTL() time.Duration { return i.ttl }

// Issue mints a token for identity scoped to roomName with publish,
// subscribe and data-publish grants.
func (i *TokenIssuer) Issue(identity, name, roomName string) (string, error) {
	if strings.TrimSpace(identity) == "" || strings.TrimSpace(roomName) == "" {
		return "", fault.New(fault.CodeInvalidRequest, "identity and room name are required")
	}

	canPublish := true
	canSubscribe := true
	canPublishData := true

	at := auth.NewAccessToken(i.apiKey, i.apiSecret)
	grant := &auth.VideoGrant{
		RoomJoin:       true,
		Room:           roomName,
		CanPublish:     &canPublish,
		CanSubscribe:   &canSubscribe,
		CanPublishData: &canPublishData,
	}
	at.AddGrant(grant).
		SetIdentity(identity).
		SetName(name).
		SetValidFor(i.ttl)

	token, err := at.ToJWT()
	if err != nil {
		return "", fault.Wrap(fault.CodeCreateSessionFailed, "mint realtime token", err)
	}
	return token, nil
}

// Decode verifies a token signature and returns its room grant.
func (i *TokenIssuer) Decode(token string) (Grant, error) {
	verifier, err := auth.ParseAPIToken(token)
	if err != nil {
		return Grant{}, fault.Wrap(fault.CodeConnectionError, "parse realtime token", err)
	}
	claims, err := verifier.Verify(i.apiSecret)
	if err != nil {
		return Grant{}, fault.Wrap(fault.CodeConnectionError, "verify realtime token", err)
	}
	if claims.Video == nil {
		return Grant{}, fault.New(fault.CodeConnectionError, "token carries no room grant")
	}
	return Grant{Room: claims.Video.Room, Identity: verifier.Identity()}, nil
}

type roomClaims struct {
	jwt.RegisteredClaims
	Video struct {
		Room     string `json:"room"`
		RoomJoin bool   `json:"roomJoin"`
	} `json:"video"`
}

// VerifyRoomClaim enforces the join-time invariant: the token's embedded
// room claim must equal the session's room name. A mismatch is fatal.
// Clients hold no signing secret, so only the payload is inspected here;
// the transport rejects bad signatures on join.
func VerifyRoomClaim(token, roomName string) error {
	var claims roomClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return fault.Wrap(fault.CodeConnectionError, "parse realtime token", err)
	}
	if claims.Video.Room == "" {
		return fault.New(fault.CodeConnectionError, "token carries no room grant")
	}
	if claims.Video.Room != roomName {
		return fault.New(fault.CodeConnectionError,
			fmt.Sprintf("token room claim %q does not match room %q", claims.Video.Room, roomName))
	}
	return nil
}
