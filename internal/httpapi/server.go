package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/dterzis/voicegate/internal/auth"
	"github.com/dterzis/voicegate/internal/config"
	"github.com/dterzis/voicegate/internal/conversation"
	"github.com/dterzis/voicegate/internal/fault"
	"github.com/dterzis/voicegate/internal/observability"
	"github.com/dterzis/voicegate/internal/reliability"
	"github.com/dterzis/voicegate/internal/rtc"
	"github.com/dterzis/voicegate/internal/session"
)

// Server is the HTTP gateway consumed by the web and mobile clients.
type Server struct {
	cfg           config.Config
	verifier      *auth.Verifier
	registry      *session.Registry
	issuer        *rtc.TokenIssuer
	conversations conversation.Store
	metrics       *observability.Metrics
	upgrader      websocket.Upgrader
}

func New(cfg config.Config, verifier *auth.Verifier, registry *session.Registry, issuer *rtc.TokenIssuer, conversations conversation.Store, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:           cfg,
		verifier:      verifier,
		registry:      registry,
		issuer:        issuer,
		conversations: conversations,
		metrics:       metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(cfg.CORSAllowedOrigins) == 0 {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				for _, allowed := range cfg.CORSAllowedOrigins {
					if strings.EqualFold(origin, allowed) {
						return true
					}
				}
				return false
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	requireAuth := s.verifier.Middleware(func(w http.ResponseWriter, err error) {
		s.respondFault(w, err)
	})

	r.Route("/api/v1", func(r chi.Router) {
		// The websocket feed authenticates via query parameter; browsers
		// cannot attach an Authorization header to an upgrade request.
		r.Get("/voice/session/{id}/ws", s.handleSessionWS)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Post("/voice/session/create", s.handleCreateSession)
			r.Get("/voice/session/{id}", s.handleGetSession)
			r.Get("/voice/session/{id}/status", s.handleSessionStatus)
			r.Post("/voice/session/{id}/activate", s.handleActivateSession)
			r.Post("/voice/session/{id}/end", s.handleEndSession)
			r.Delete("/voice/session/{id}", s.handleDeleteSession)

			r.Post("/conversations/", s.handleCreateConversation)
			r.Get("/conversations/{id}/messages", s.handleListMessages)
			r.Post("/conversations/{id}/messages/batch", s.handleAppendMessages)
		})
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":             "ready",
		"realtime_transport": s.issuer.ServerURL(),
	})
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) respondError(w http.ResponseWriter, status int, code fault.Code, message string) {
	s.metrics.RequestErrors.WithLabelValues(string(code)).Inc()
	respondJSON(w, status, errorResponse{
		Error:     message,
		Code:      string(code),
		Retryable: reliability.IsRetryableCode(code),
	})
}

// opFault attaches an operation code to raw store errors. Sentinel and
// already-typed errors pass through untouched so respondFault keeps its
// specific mapping for them.
func opFault(err error, code fault.Code, message string) error {
	if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrNotOwner) ||
		errors.Is(err, session.ErrInvalidTransition) || errors.Is(err, conversation.ErrNotFound) {
		return err
	}
	var fe *fault.Error
	if errors.As(err, &fe) {
		return err
	}
	return fault.Wrap(code, message, err)
}

// respondFault maps a service error to its HTTP form. Registry sentinel
// errors are translated here so services stay HTTP-free.
func (s *Server) respondFault(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, conversation.ErrNotFound):
		s.respondError(w, http.StatusNotFound, fault.CodeNotFound, err.Error())
	case errors.Is(err, session.ErrNotOwner):
		s.respondError(w, http.StatusForbidden, fault.CodeForbidden, err.Error())
	case errors.Is(err, session.ErrInvalidTransition):
		s.respondError(w, http.StatusConflict, fault.CodeInvalidRequest, err.Error())
	default:
		var fe *fault.Error
		if errors.As(err, &fe) {
			s.respondError(w, fault.HTTPStatus(err), fe.Code, fe.Message)
			return
		}
		s.respondError(w, http.StatusInternalServerError, fault.CodeInternal, err.Error())
	}
}
