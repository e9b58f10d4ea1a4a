package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"quiz-arena/internal/app"
	"quiz-arena/internal/domain"

	"github.com/gorilla/websocket"
)

type WSHandler struct {
	service        *app.QuizService
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	outcomeTimeout time.Duration
}

func NewWSHandler(service *app.QuizService, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		outcomeTimeout: 10 * time.Second,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type startPayload struct {
	domain.QuizSettings
	DisplayName string `json:"displayName"`
}

type answerPayload struct {
	OptionID string `json:"optionId"`
}

type startedPayload struct {
	SessionID string `json:"sessionId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades HTTP requests to websockets and runs quiz sessions over them.
// Inbound: start, answer, abandon. Outbound: started, state, result, error.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	if userID == "" {
		http.Error(w, "missing user id", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})
	var producers sync.WaitGroup

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", "user", userID, "error", err)
				cancel()
				// keep draining so producers never block on a dead connection
				for range send {
				}
				return
			}
		}
	}()

	emit := func(typ string, payload any) {
		select {
		case send <- outboundMessage[any]{Type: typ, Payload: payload}:
		case <-ctx.Done():
		}
	}
	emitErr := func(err error) {
		emit("error", errorPayload{Code: errorCode(err), Message: err.Error()})
	}

	var (
		sessionID   string
		stopUpdates = func() {}
	)
	endSession := func() {
		if sessionID == "" {
			return
		}
		stopUpdates()
		h.service.Abandon(context.Background(), sessionID, userID)
		sessionID = ""
		stopUpdates = func() {}
	}

	forward := func(id string, updates <-chan app.Snapshot) {
		defer producers.Done()
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					return
				}
				emit("state", snap)
				switch snap.State {
				case app.StateCompleted:
					outcomeCtx, done := context.WithTimeout(ctx, h.outcomeTimeout)
					outcome, err := h.service.Outcome(outcomeCtx, id, userID)
					done()
					if err != nil {
						emitErr(err)
						return
					}
					emit("result", outcome)
					return
				case app.StateFailed:
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "start":
			var payload startPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				emit("error", errorPayload{Code: "bad_request", Message: "invalid start payload"})
				continue
			}
			endSession()
			session, err := h.service.Start(ctx, userID, payload.DisplayName, payload.QuizSettings)
			if err != nil {
				emitErr(err)
				continue
			}
			updates, unsubscribe, err := h.service.Subscribe(ctx, session.ID(), userID)
			if err != nil {
				emitErr(err)
				continue
			}
			sessionID, stopUpdates = session.ID(), unsubscribe
			emit("started", startedPayload{SessionID: sessionID})
			producers.Add(1)
			go forward(sessionID, updates)
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				emit("error", errorPayload{Code: "bad_request", Message: "invalid answer payload"})
				continue
			}
			if sessionID == "" {
				emitErr(domain.ErrSessionNotStarted)
				continue
			}
			if _, err := h.service.Answer(ctx, sessionID, userID, payload.OptionID); err != nil {
				emitErr(err)
			}
		case "abandon":
			endSession()
		default:
			emit("error", errorPayload{Code: "bad_request", Message: "unsupported message type"})
		}
	}

	// Leaving the page stops the timer; late snapshots are dropped.
	cancel()
	endSession()
	producers.Wait()
	close(send)
	<-writerDone
}
