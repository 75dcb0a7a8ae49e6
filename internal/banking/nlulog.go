package banking

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bankbot/internal/common/logger"
	"bankbot/internal/dialogue"
)

// NLULogger persists per-turn NLU outcomes for offline model review.
// Raw text is stored as written by the user; PIN turns never reach this
// logger.
type NLULogger struct {
	db  *sql.DB
	log logger.Logger
}

func NewNLULogger(db *sql.DB, log logger.Logger) *NLULogger {
	return &NLULogger{db: db, log: log}
}

func (l *NLULogger) LogInteraction(ctx context.Context, rec dialogue.InteractionRecord) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO nlu_logs (session_id, user_id, utterance, intent, confidence, gate_decision, dialogue_state, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.SessionID, rec.UserID, rec.Text, rec.Intent, rec.Confidence,
		string(rec.Decision), string(rec.State), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("nlu log insert failed: %w", err)
	}
	return nil
}
