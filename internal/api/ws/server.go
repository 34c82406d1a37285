// Package ws serves the live chat connection. Clients join the room they share
// with a peer and receive every message sent in it.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-service/internal/api/dto"
	"github.com/spec-kit/marketplace-service/internal/auth"
	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/realtime"
	"github.com/spec-kit/marketplace-service/internal/service"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

// Inbound and outbound event names.
const (
	EventJoin        = "join"
	EventLeave       = "leave"
	EventSendMessage = "send_message"
	EventAck         = "ack"
	EventError       = "error"
)

// Authenticator resolves a bearer token into a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Principal, error)
}

// ChatSender persists and relays chat messages.
type ChatSender interface {
	SendMessage(ctx context.Context, input service.SendMessageInput) (*domain.Message, error)
	RoomID(a, b string) string
}

// Rooms tracks room membership for live clients.
type Rooms interface {
	OnConnect(c realtime.Client)
	OnDisconnect(c realtime.Client)
	Join(c realtime.Client, room string)
	Leave(c realtime.Client, room string)
}

// ServerDependencies wires the websocket server.
type ServerDependencies struct {
	Authenticator Authenticator
	Chat          ChatSender
	Rooms         Rooms
	Logger        *zap.Logger
	// AllowedOrigins limits browser origins; empty accepts any.
	AllowedOrigins []string
}

// Server upgrades HTTP requests to chat connections.
type Server struct {
	auth     Authenticator
	chat     ChatSender
	rooms    Rooms
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewServer constructs a server.
func NewServer(deps ServerDependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		auth:   deps.Authenticator,
		chat:   deps.Chat,
		rooms:  deps.Rooms,
		logger: logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(deps.AllowedOrigins),
	}
	return s
}

// Handler returns the router serving /ws.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.serveWS).Methods(http.MethodGet)
	return r
}

type inbound struct {
	Event string          `json:"event"`
	Ref   string          `json:"ref,omitempty"`
	Data  json.RawMessage `json:"data"`
}

type roomRequest struct {
	PeerID string `json:"peer_id"`
}

type sendRequest struct {
	ReceiverID string `json:"receiver_id"`
	Body       string `json:"body"`
}

type ackPayload struct {
	Ref     string               `json:"ref,omitempty"`
	Event   string               `json:"event"`
	Room    string               `json:"room,omitempty"`
	Message *dto.MessageResponse `json:"message,omitempty"`
}

type errorPayload struct {
	Ref     string         `json:"ref,omitempty"`
	Event   string         `json:"event,omitempty"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		bearer, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		token = bearer
	}
	principal, err := s.auth.Authenticate(r.Context(), token)
	if err != nil {
		status := http.StatusUnauthorized
		if apperrors.KindOf(err) == apperrors.KindStoreUnavailable {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(uuid.NewString(), principal, conn, s.logger)
	s.rooms.OnConnect(c)
	s.logger.Info("websocket connected",
		zap.String("client_id", c.id),
		zap.String("subject_id", principal.ID),
		zap.String("subject_type", string(principal.SubjectType)))

	go c.writePump()
	c.readPump(func(frame []byte) { s.handle(context.Background(), c, frame) })

	s.rooms.OnDisconnect(c)
	s.logger.Info("websocket disconnected", zap.String("client_id", c.id))
}

// handle dispatches one inbound frame and answers with an ack or an error.
func (s *Server) handle(ctx context.Context, c *client, frame []byte) {
	var in inbound
	if err := json.Unmarshal(frame, &in); err != nil {
		s.reply(c, EventError, errorPayload{Code: apperrors.CodeValidationFailed, Message: "malformed frame"})
		return
	}

	switch in.Event {
	case EventJoin, EventLeave:
		var req roomRequest
		if err := json.Unmarshal(in.Data, &req); err != nil || strings.TrimSpace(req.PeerID) == "" {
			s.replyError(c, in, apperrors.NewValidationError("peer_id required", nil))
			return
		}
		room := s.chat.RoomID(c.principal.ID, strings.TrimSpace(req.PeerID))
		if in.Event == EventJoin {
			s.rooms.Join(c, room)
		} else {
			s.rooms.Leave(c, room)
		}
		s.reply(c, EventAck, ackPayload{Ref: in.Ref, Event: in.Event, Room: room})

	case EventSendMessage:
		var req sendRequest
		if err := json.Unmarshal(in.Data, &req); err != nil {
			s.replyError(c, in, apperrors.NewValidationError("malformed message", nil))
			return
		}
		msg, err := s.chat.SendMessage(ctx, service.SendMessageInput{
			SenderID:   c.principal.ID,
			ReceiverID: strings.TrimSpace(req.ReceiverID),
			SentBy:     c.principal.SentBy(),
			Body:       req.Body,
		})
		if err != nil {
			s.replyError(c, in, err)
			return
		}
		resp := dto.NewMessageResponse(msg)
		s.reply(c, EventAck, ackPayload{Ref: in.Ref, Event: in.Event, Message: &resp})

	default:
		s.replyError(c, in, apperrors.NewValidationError("unknown event", map[string]any{"event": in.Event}))
	}
}

func (s *Server) replyError(c *client, in inbound, err error) {
	domainErr := apperrors.ToDomainError(err)
	if domainErr.Kind == apperrors.KindInternal || domainErr.Kind == apperrors.KindStoreUnavailable {
		s.logger.Error("websocket event failed", zap.String("event", in.Event), zap.String("client_id", c.id), zap.Error(err))
	}
	s.reply(c, EventError, errorPayload{
		Ref:     in.Ref,
		Event:   in.Event,
		Code:    domainErr.Code,
		Message: domainErr.Message,
		Details: domainErr.Details,
	})
}

func (s *Server) reply(c *client, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("encode websocket reply failed", zap.Error(err))
		return
	}
	frame, err := json.Marshal(realtime.Envelope{Event: event, Payload: raw})
	if err != nil {
		return
	}
	if !c.Send(frame) {
		s.logger.Debug("websocket reply dropped", zap.String("client_id", c.id), zap.String("event", event))
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.TrimSpace(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
