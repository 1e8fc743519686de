package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dterzis/voicegate/internal/auth"
	"github.com/dterzis/voicegate/internal/conversation"
	"github.com/dterzis/voicegate/internal/fault"
)

type createConversationRequest struct {
	Title    string         `json:"title"`
	Metadata map[string]any `json:"metadata"`
	Tags     []string       `json:"tags"`
}

type appendMessagesRequest struct {
	Messages []appendMessage `json:"messages"`
}

type appendMessage struct {
	Role        string         `json:"role"`
	Content     string         `json:"content"`
	MessageType string         `json:"message_type"`
	Metadata    map[string]any `json:"metadata"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	var req createConversationRequest
	if err := decodeJSON(r, &req); err != nil && err != errEmptyBody {
		s.respondError(w, http.StatusBadRequest, fault.CodeInvalidRequest, "malformed request body")
		return
	}

	conv, err := s.conversations.Create(r.Context(), conversation.Conversation{
		UserID:   id.UserID,
		Title:    req.Title,
		Metadata: req.Metadata,
		Tags:     req.Tags,
	})
	if err != nil {
		s.respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, conv)
}

// ownedConversation loads a conversation and checks the caller owns it.
func (s *Server) ownedConversation(r *http.Request, userID string) (conversation.Conversation, error) {
	conv, err := s.conversations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return conversation.Conversation{}, err
	}
	if conv.UserID != userID {
		return conversation.Conversation{}, fault.New(fault.CodeForbidden, "conversation belongs to another user")
	}
	return conv, nil
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	conv, err := s.ownedConversation(r, id.UserID)
	if err != nil {
		s.respondFault(w, err)
		return
	}
	msgs, err := s.conversations.Messages(r.Context(), conv.ID)
	if err != nil {
		s.respondFault(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conv.ID,
		"messages":        msgs,
	})
}

func (s *Server) handleAppendMessages(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	conv, err := s.ownedConversation(r, id.UserID)
	if err != nil {
		s.respondFault(w, err)
		return
	}

	var req appendMessagesRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, fault.CodeInvalidRequest, "malformed request body")
		return
	}
	if len(req.Messages) == 0 {
		s.respondError(w, http.StatusBadRequest, fault.CodeInvalidRequest, "messages must not be empty")
		return
	}

	msgs := make([]conversation.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "" || m.Content == "" {
			s.respondError(w, http.StatusBadRequest, fault.CodeInvalidRequest, "message role and content are required")
			return
		}
		msgs = append(msgs, conversation.Message{
			Role:        m.Role,
			Content:     m.Content,
			MessageType: m.MessageType,
			Metadata:    m.Metadata,
		})
	}

	if err := s.conversations.AppendMessages(r.Context(), conv.ID, msgs); err != nil {
		s.metrics.TranscriptFlush.WithLabelValues("failure").Inc()
		s.respondError(w, http.StatusInternalServerError, fault.CodeSaveTranscriptFailed, "append messages")
		return
	}
	s.metrics.TranscriptFlush.WithLabelValues("success").Inc()
	for _, m := range msgs {
		if m.MessageType == conversation.MessageTypeVoiceTranscription {
			s.metrics.TranscriptEvents.WithLabelValues(m.Role, "final").Inc()
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conv.ID,
		"inserted":        len(msgs),
	})
}
