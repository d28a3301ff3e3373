package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"mindquake-service/internal/app"
	"mindquake-service/internal/domain"
)

// WSHandler lets one player take quizzes over a websocket. A connection plays at most one
// session at a time; the session is discarded when the connection drops mid-quiz.
type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Answer string `json:"answer"`
}

// answerResult is the outcome of one answer without the follow-up question or result,
// which are sent as their own messages.
type answerResult struct {
	Correct       bool   `json:"correct"`
	CorrectAnswer string `json:"correctAnswer"`
	CorrectCount  int    `json:"correctCount"`
}

type loadFailedPayload struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the quiz use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				slog.Warn("ws write error", "user_id", userID, "error", err)
				return
			}
		}
	}()

	c := &wsConn{handler: h, userID: userID, send: send, writerDone: writerDone}
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		c.dispatch(r.Context(), inbound)
	}

	c.abandon()
	close(send)
	<-writerDone
}

// wsConn is the per-connection state; it is only touched by the read loop.
type wsConn struct {
	handler    *WSHandler
	userID     string
	sessionID  string
	send       chan<- outboundMessage[any]
	writerDone <-chan struct{}
}

func (c *wsConn) emit(typ string, payload any) {
	select {
	case c.send <- outboundMessage[any]{Type: typ, Payload: payload}:
	case <-c.writerDone:
	}
}

func (c *wsConn) fail(message string) {
	c.emit("error", errorPayload{Message: message})
}

func (c *wsConn) dispatch(ctx context.Context, inbound inboundMessage) {
	switch inbound.Type {
	case "start":
		var cfg domain.QuizConfig
		if err := json.Unmarshal(inbound.Payload, &cfg); err != nil {
			c.fail("invalid start payload")
			return
		}
		c.start(ctx, cfg)
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			c.fail("invalid answer payload")
			return
		}
		c.answer(ctx, payload.Answer)
	case "abort":
		c.abort(ctx)
	default:
		c.fail("unsupported message type")
	}
}

func (c *wsConn) start(ctx context.Context, cfg domain.QuizConfig) {
	if c.sessionID != "" {
		c.fail("a quiz is already in progress")
		return
	}
	view, err := c.handler.service.Start(ctx, c.userID, cfg)
	if err != nil {
		c.fail(err.Error())
		return
	}
	if view.State == app.StateLoadFailed {
		c.emit("loadFailed", loadFailedPayload{SessionID: view.ID, Reason: view.Reason})
		return
	}
	c.sessionID = view.ID
	c.emit("session", view)
	if view.Question != nil {
		c.emit("question", view.Question)
	}
}

func (c *wsConn) answer(ctx context.Context, answer string) {
	if c.sessionID == "" {
		c.fail(domain.ErrSessionNotFound.Error())
		return
	}
	outcome, err := c.handler.service.Answer(ctx, c.sessionID, answer)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, domain.ErrSessionClosed) {
			c.sessionID = ""
		}
		c.fail(err.Error())
		return
	}

	c.emit("answerResult", answerResult{
		Correct:       outcome.Correct,
		CorrectAnswer: outcome.CorrectAnswer,
		CorrectCount:  outcome.CorrectCount,
	})
	switch {
	case outcome.Result != nil:
		c.sessionID = ""
		c.emit("result", outcome.Result)
	case outcome.Next != nil:
		c.emit("question", outcome.Next)
	}
}

func (c *wsConn) abort(ctx context.Context) {
	if c.sessionID == "" {
		c.fail(domain.ErrSessionNotFound.Error())
		return
	}
	id := c.sessionID
	c.sessionID = ""
	if err := c.handler.service.Abort(ctx, id); err != nil {
		c.fail(err.Error())
		return
	}
	c.emit("session", map[string]string{"id": id, "state": "aborted"})
}

// abandon discards a session left unfinished by a dropped connection.
func (c *wsConn) abandon() {
	if c.sessionID == "" {
		return
	}
	if err := c.handler.service.Abort(context.Background(), c.sessionID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		slog.Warn("abandon session", "session_id", c.sessionID, "error", err)
	}
}
