package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dterzis/voicegate/internal/auth"
	"github.com/dterzis/voicegate/internal/conversation"
	"github.com/dterzis/voicegate/internal/fault"
	"github.com/dterzis/voicegate/internal/rtc"
	"github.com/dterzis/voicegate/internal/session"
)

type createSessionRequest struct {
	ConversationID string         `json:"conversation_id"`
	Metadata       map[string]any `json:"metadata"`
}

type sessionStatusResponse struct {
	SessionID         string  `json:"session_id"`
	Status            string  `json:"status"`
	ParticipantsCount int     `json:"participants_count"`
	DurationSeconds   float64 `json:"duration_seconds"`
	LastActivity      string  `json:"last_activity"`
}

// handleCreateSession mints a room token and records a pending session. When
// the request names no conversation, a fresh one is created so the transcript
// always has a home before the call starts.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil && err != errEmptyBody {
		s.respondError(w, http.StatusBadRequest, fault.CodeInvalidRequest, "malformed request body")
		return
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conv, err := s.conversations.Create(r.Context(), conversation.Conversation{
			UserID: id.UserID,
			Title:  "Voice call " + time.Now().UTC().Format("2006-01-02 15:04"),
		})
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, fault.CodeCreateSessionFailed, "create conversation")
			return
		}
		conversationID = conv.ID
	} else {
		conv, err := s.conversations.Get(r.Context(), conversationID)
		if err != nil {
			s.respondFault(w, err)
			return
		}
		if conv.UserID != id.UserID {
			s.respondError(w, http.StatusForbidden, fault.CodeForbidden, "conversation belongs to another user")
			return
		}
	}

	roomName := rtc.RoomName(conversationID)
	identity := rtc.ParticipantIdentity(id.UserID)

	token, err := s.issuer.Issue(identity, id.UserID, roomName)
	if err != nil {
		s.respondFault(w, err)
		return
	}
	s.metrics.TokensIssued.Inc()

	sess := &session.Session{
		ID:             uuid.NewString(),
		UserID:         id.UserID,
		ConversationID: conversationID,
		RoomName:       roomName,
		Identity:       identity,
		Token:          token,
		ServerURL:      s.issuer.ServerURL(),
		Config:         s.buildCallConfig(req.Metadata),
	}
	if err := s.registry.Create(r.Context(), sess); err != nil {
		s.respondError(w, http.StatusInternalServerError, fault.CodeCreateSessionFailed, "record session")
		return
	}

	s.metrics.ActiveSessions.Inc()
	s.metrics.SessionEvents.WithLabelValues("created").Inc()
	respondJSON(w, http.StatusOK, sess)
}

// buildCallConfig folds request metadata over the configured defaults.
// Recognized keys are lifted into typed fields; the rest ride along in Extra.
func (s *Server) buildCallConfig(metadata map[string]any) session.CallConfig {
	cc := session.CallConfig{
		Instructions: s.cfg.DefaultInstructions,
		Voice: session.VoiceSettings{
			VoiceID:         s.cfg.DefaultVoiceID,
			Temperature:     s.cfg.DefaultTemperature,
			MaxOutputTokens: s.cfg.DefaultMaxOutputTokens,
		},
		Transcription: session.TranscriptionSettings{
			Language: s.cfg.DefaultSTTLanguage,
			Model:    s.cfg.DefaultSTTModel,
		},
	}

	for key, raw := range metadata {
		switch key {
		case "instructions":
			if v, ok := raw.(string); ok && v != "" {
				cc.Instructions = v
			}
		case "voice_settings":
			if m, ok := raw.(map[string]any); ok {
				if v, ok := m["voice_id"].(string); ok && v != "" {
					cc.Voice.VoiceID = v
				}
				if v, ok := m["temperature"].(float64); ok {
					cc.Voice.Temperature = v
				}
				if v, ok := m["max_output_tokens"].(float64); ok && v > 0 {
					cc.Voice.MaxOutputTokens = int(v)
				}
			}
		case "transcription_settings":
			if m, ok := raw.(map[string]any); ok {
				if v, ok := m["language"].(string); ok && v != "" {
					cc.Transcription.Language = v
				}
				if v, ok := m["model"].(string); ok && v != "" {
					cc.Transcription.Model = v
				}
			}
		default:
			if cc.Extra == nil {
				cc.Extra = make(map[string]any)
			}
			cc.Extra[key] = raw
		}
	}
	return cc
}

// handleGetSession returns the full session record, token included, so a
// client can resume a call view without re-minting.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	sess, err := s.registry.Get(r.Context(), id.UserID, chi.URLParam(r, "id"))
	if err != nil {
		s.respondFault(w, opFault(err, fault.CodeGetSessionFailed, "get session"))
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	sessionID := chi.URLParam(r, "id")

	sess, err := s.registry.Get(r.Context(), id.UserID, sessionID)
	if err != nil {
		s.respondFault(w, opFault(err, fault.CodeGetStatusFailed, "get session status"))
		return
	}
	if sess.Status == session.StatusPending || sess.Status == session.StatusActive {
		_ = s.registry.Touch(r.Context(), sessionID)
	}

	respondJSON(w, http.StatusOK, statusOf(sess))
}

// statusOf renders the poll response. The registry does not track actual room
// membership; participant count is inferred from lifecycle state (caller plus
// assistant once the call is active).
func statusOf(sess *session.Session) sessionStatusResponse {
	participants := 0
	if sess.Status == session.StatusActive {
		participants = 2
	}
	return sessionStatusResponse{
		SessionID:         sess.ID,
		Status:            string(sess.Status),
		ParticipantsCount: participants,
		DurationSeconds:   sess.Duration(time.Now().UTC()).Seconds(),
		LastActivity:      sess.LastActivityAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleActivateSession(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	sessionID := chi.URLParam(r, "id")

	sess, err := s.registry.UpdateStatus(r.Context(), id.UserID, sessionID, session.StatusActive)
	if err != nil {
		s.respondFault(w, err)
		return
	}
	s.metrics.SessionEvents.WithLabelValues("activated").Inc()
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	sess, err := s.endSession(r, id.UserID, chi.URLParam(r, "id"))
	if err != nil {
		s.respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	if _, err := s.endSession(r, id.UserID, chi.URLParam(r, "id")); err != nil {
		s.respondFault(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) endSession(r *http.Request, userID, sessionID string) (*session.Session, error) {
	before, err := s.registry.Get(r.Context(), userID, sessionID)
	if err != nil {
		return nil, opFault(err, fault.CodeEndSessionFailed, "end session")
	}
	wasLive := before.Status == session.StatusPending || before.Status == session.StatusActive

	sess, err := s.registry.End(r.Context(), userID, sessionID)
	if err != nil {
		return nil, opFault(err, fault.CodeEndSessionFailed, "end session")
	}
	if wasLive {
		s.metrics.ActiveSessions.Dec()
		s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	}
	return sess, nil
}
