package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/club-portal-assistant/internal/assistant"
	"github.com/wolfman30/club-portal-assistant/internal/http/middleware"
	"github.com/wolfman30/club-portal-assistant/pkg/logging"
)

// Server frame types.
const (
	FrameSession  = "session"
	FrameHistory  = "history"
	FrameMessage  = "message"
	FrameTyping   = "typing"
	FrameDelivery = "delivery"
	FrameState    = "state"
	FrameReset    = "reset"
	FramePong     = "pong"
)

// Client frame types.
const (
	ClientMessage    = "message"
	ClientQuickReply = "quick_reply"
	ClientClear      = "clear"
	ClientOpen       = "open"
	ClientMinimize   = "minimize"
	ClientClose      = "close"
	ClientPing       = "ping"
)

const defaultWaitTimeout = 15 * time.Second

// Handler serves the chat widget over WebSocket with HTTP fallbacks.
type Handler struct {
	registry    *assistant.Registry
	logger      *logging.Logger
	widgetJS    []byte
	waitTimeout time.Duration

	mu    sync.Mutex
	conns map[*wsConn]struct{}
}

type wsConn struct {
	conn  *websocket.Conn
	owner string
	mu    sync.Mutex
}

func (c *wsConn) send(frame OutboundFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return websocket.JSON.Send(c.conn, frame)
}

// InboundFrame is what the widget sends.
type InboundFrame struct {
	Type          string `json:"type"`
	Text          string `json:"text"`
	AttachmentRef string `json:"attachment_ref"`
}

// OutboundFrame is what the widget receives.
type OutboundFrame struct {
	Type          string        `json:"type"`
	SessionID     string        `json:"session_id,omitempty"`
	Message       *MessageView  `json:"message,omitempty"`
	Messages      []MessageView `json:"messages,omitempty"`
	MessageID     string        `json:"message_id,omitempty"`
	DeliveryState string        `json:"delivery_state,omitempty"`
	QuickReplies  []string      `json:"quick_replies,omitempty"`
	Typing        *bool         `json:"typing,omitempty"`
	Presence      string        `json:"presence,omitempty"`
	Widget        string        `json:"widget,omitempty"`
	Unread        *int          `json:"unread,omitempty"`
}

// NewHandler creates a web chat handler over the session registry.
func NewHandler(registry *assistant.Registry, widgetJS []byte, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		registry:    registry,
		logger:      logger,
		widgetJS:    widgetJS,
		waitTimeout: defaultWaitTimeout,
		conns:       make(map[*wsConn]struct{}),
	}
}

// generateSessionID creates a random visitor session identifier.
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// ownerFor resolves the session owner for a request and visitor session id.
func ownerFor(r *http.Request, sessionID string) string {
	return assistant.OwnerIdentity(middleware.UserIDFromContext(r.Context()), sessionID)
}

// Connections reports the number of open widget sockets.
func (h *Handler) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// HandleWebSocket upgrades to WebSocket and drives one mounted widget.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session"))
	if sessionID == "" {
		sessionID = generateSessionID()
	}
	owner := ownerFor(r, sessionID)
	logger := h.logger.WithOwner(owner)

	ctx := r.Context()
	lease, err := h.registry.Acquire(ctx, owner)
	if err != nil {
		logger.Error("webchat: failed to mount session", "error", err)
		return
	}
	defer lease.Release()

	wsc := &wsConn{conn: conn, owner: owner}
	h.mu.Lock()
	h.conns[wsc] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.conns, wsc)
		h.mu.Unlock()
	}()

	// Subscribe before the snapshot so no change between the two is lost.
	events, unsubscribe := lease.Subscribe()
	if err := wsc.send(OutboundFrame{Type: FrameSession, SessionID: sessionID}); err != nil {
		unsubscribe()
		return
	}
	if err := wsc.send(historyFrame(lease.Snapshot())); err != nil {
		unsubscribe()
		return
	}

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for evt := range events {
			frame, ok := frameFromEvent(evt)
			if !ok {
				continue
			}
			if err := wsc.send(frame); err != nil {
				logger.Debug("webchat: push failed", "error", err)
			}
		}
	}()
	defer func() {
		unsubscribe()
		<-pumpDone
	}()

	logger.Info("webchat: connection opened", "session_id", sessionID)
	for {
		var frame InboundFrame
		if err := websocket.JSON.Receive(conn, &frame); err != nil {
			logger.Debug("webchat: connection closed", "error", err)
			return
		}
		if frame.Type == ClientPing {
			_ = wsc.send(OutboundFrame{Type: FramePong})
			continue
		}
		h.dispatch(ctx, lease.Manager, frame, logger)
	}
}

func (h *Handler) dispatch(ctx context.Context, m *assistant.Manager, frame InboundFrame, logger *logging.Logger) {
	var err error
	switch frame.Type {
	case ClientMessage:
		var att *assistant.Attachment
		if frame.AttachmentRef != "" {
			att = &assistant.Attachment{Ref: frame.AttachmentRef}
		}
		_, err = m.SendUserMessage(ctx, frame.Text, att)
	case ClientQuickReply:
		_, err = m.SelectSuggestedReply(ctx, frame.Text)
	case ClientClear:
		err = m.ClearConversation(ctx)
	case ClientOpen:
		m.Open()
	case ClientMinimize:
		m.Minimize()
	case ClientClose:
		m.Close()
	default:
		logger.Debug("webchat: ignoring frame", "type", frame.Type)
	}
	if err != nil {
		logger.Debug("webchat: frame rejected", "type", frame.Type, "error", err)
	}
}

type messageRequest struct {
	SessionID     string `json:"session_id"`
	Text          string `json:"text"`
	AttachmentRef string `json:"attachment_ref"`
	Wait          bool   `json:"wait"`
}

type sessionResponse struct {
	Status       string        `json:"status,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	SessionID    string        `json:"session_id"`
	Message      *MessageView  `json:"message,omitempty"`
	Messages     []MessageView `json:"messages,omitempty"`
	QuickReplies []string      `json:"quick_replies,omitempty"`
	Typing       bool          `json:"typing"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, assistant.ErrEmptyMessage):
		return "empty"
	case errors.Is(err, assistant.ErrTurnInProgress):
		return "busy"
	case errors.Is(err, assistant.ErrSessionClosed):
		return "closed"
	default:
		return ""
	}
}

// HandleMessage is the HTTP fallback for sending a message. Invalid sends
// are acknowledged as ignored rather than reported as failures.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = generateSessionID()
	}

	lease, err := h.registry.Acquire(r.Context(), ownerFor(r, req.SessionID))
	if err != nil {
		h.logger.Error("webchat: failed to mount session", "error", err)
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	defer lease.ReleaseAfterTurn()

	var att *assistant.Attachment
	if req.AttachmentRef != "" {
		att = &assistant.Attachment{Ref: req.AttachmentRef}
	}
	msg, err := lease.SendUserMessage(r.Context(), req.Text, att)
	if err != nil {
		if reason := rejectReason(err); reason != "" {
			writeJSON(w, http.StatusOK, sessionResponse{Status: "ignored", Reason: reason, SessionID: req.SessionID})
			return
		}
		h.logger.Error("webchat: send failed", "error", err)
		http.Error(w, "send failed", http.StatusInternalServerError)
		return
	}

	if !req.Wait {
		view := viewMessage(msg)
		writeJSON(w, http.StatusAccepted, sessionResponse{Status: "accepted", SessionID: req.SessionID, Message: &view, Typing: true})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.waitTimeout)
	defer cancel()
	status := "delivered"
	if err := lease.WaitIdle(ctx); err != nil {
		status = "pending"
	}
	snap := lease.Snapshot()
	writeJSON(w, http.StatusOK, sessionResponse{
		Status:       status,
		SessionID:    req.SessionID,
		Messages:     viewMessages(snap.Messages),
		QuickReplies: snap.QuickReplies,
		Typing:       snap.IsAgentTyping,
	})
}

// HandleHistory returns the session log for a visitor.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session"))
	if sessionID == "" && middleware.UserIDFromContext(r.Context()) == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}

	lease, err := h.registry.Acquire(r.Context(), ownerFor(r, sessionID))
	if err != nil {
		h.logger.Error("webchat: failed to load history", "error", err)
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	defer lease.ReleaseAfterTurn()

	snap := lease.Snapshot()
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:    sessionID,
		Messages:     viewMessages(snap.Messages),
		QuickReplies: snap.QuickReplies,
		Typing:       snap.IsAgentTyping,
	})
}

// HandleClear resets the visitor's conversation to a fresh welcome message.
func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" && middleware.UserIDFromContext(r.Context()) == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	lease, err := h.registry.Acquire(r.Context(), ownerFor(r, req.SessionID))
	if err != nil {
		h.logger.Error("webchat: failed to mount session", "error", err)
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	defer lease.Release()

	if err := lease.ClearConversation(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, sessionResponse{Status: "ignored", Reason: rejectReason(err), SessionID: req.SessionID})
		return
	}
	snap := lease.Snapshot()
	writeJSON(w, http.StatusOK, sessionResponse{
		Status:       "cleared",
		SessionID:    req.SessionID,
		Messages:     viewMessages(snap.Messages),
		QuickReplies: snap.QuickReplies,
	})
}

// HandleWidgetJS serves the embeddable widget bundle.
func (h *Handler) HandleWidgetJS(w http.ResponseWriter, r *http.Request) {
	if len(h.widgetJS) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(h.widgetJS)
}
