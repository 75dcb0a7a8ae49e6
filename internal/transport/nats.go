// Package transport exposes the dialogue engine over NATS request/reply.
package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"bankbot/internal/common/logger"
	"bankbot/internal/common/observability"
	"bankbot/internal/dialogue"
	"bankbot/internal/models"
)

// Server subscribes to the turn subject and answers each request with
// the engine's next prompt. Turns for the same session are serialized;
// distinct sessions run concurrently.
type Server struct {
	nc      *nats.Conn
	engine  *dialogue.Engine
	subject string
	timeout time.Duration
	obs     *observability.Observability
	log     logger.Logger

	sub *nats.Subscription

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewServer(nc *nats.Conn, engine *dialogue.Engine, subject string, timeout time.Duration, obs *observability.Observability, log logger.Logger) *Server {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{
		nc:      nc,
		engine:  engine,
		subject: subject,
		timeout: timeout,
		obs:     obs,
		log:     log,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Start subscribes and begins serving turns.
func (s *Server) Start() error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		go s.handleMessage(msg)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	s.log.Info("turn transport started", map[string]interface{}{"subject": s.subject})
	return nil
}

// Stop drains the subscription so in-flight turns finish.
func (s *Server) Stop() {
	if s.sub != nil {
		if err := s.sub.Drain(); err != nil {
			s.log.Warn("failed to drain subscription", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (s *Server) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var req models.TurnRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.reply(msg, &models.TurnResponse{Reply: "invalid request payload", ErrorCode: "BAD_REQUEST"})
		return
	}
	if req.SessionID == "" || req.UserID == "" {
		s.reply(msg, &models.TurnResponse{Reply: "session_id and user_id are required", ErrorCode: "BAD_REQUEST"})
		return
	}

	// One turn at a time per session; other sessions proceed.
	lock := s.sessionLock(req.SessionID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	turn, err := s.engine.HandleTurn(ctx, dialogue.TurnInput{
		SessionID:      req.SessionID,
		UserID:         req.UserID,
		Text:           req.Text,
		DefaultAccount: req.AccountNumber,
	})
	if err != nil {
		s.log.Error("turn processing failed", map[string]interface{}{
			"session_id": req.SessionID,
			"error":      err.Error(),
		})
		s.reply(msg, &models.TurnResponse{
			SessionID: req.SessionID,
			Reply:     "Something went wrong on our side. Please try again.",
			ErrorCode: "INTERNAL",
		})
		return
	}

	if s.obs != nil {
		s.obs.RecordTurn(ctx, string(turn.State))
		s.obs.RecordTurnDuration(ctx, time.Since(start), string(turn.State))
		if turn.Done {
			outcome := "completed"
			if turn.ErrorCode != "" {
				outcome = string(turn.ErrorCode)
			}
			s.obs.RecordFlowOutcome(ctx, outcome)
		}
	}

	s.reply(msg, &models.TurnResponse{
		SessionID: turn.SessionID,
		Reply:     turn.Reply,
		State:     string(turn.State),
		Intent:    turn.Intent,
		Done:      turn.Done,
		ErrorCode: string(turn.ErrorCode),
	})
}

func (s *Server) reply(msg *nats.Msg, resp *models.TurnResponse) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("failed to encode response", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := msg.Respond(data); err != nil {
		s.log.Warn("failed to send response", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Server) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	return lock
}
