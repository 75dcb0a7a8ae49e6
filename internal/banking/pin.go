package banking

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"bankbot/internal/common/logger"
)

// PinVerifier checks transaction PINs against their bcrypt hashes. The
// plaintext PIN exists only for the duration of this call and is never
// logged or returned.
type PinVerifier struct {
	db  *sql.DB
	log logger.Logger
}

func NewPinVerifier(db *sql.DB, log logger.Logger) *PinVerifier {
	return &PinVerifier{db: db, log: log}
}

func (v *PinVerifier) VerifyPin(ctx context.Context, userID, pin string) (bool, error) {
	var hash string
	err := v.db.QueryRowContext(ctx,
		`SELECT pin_hash FROM users WHERE user_id = $1`, userID,
	).Scan(&hash)
	if err == sql.ErrNoRows {
		v.log.Warn("pin check for unknown user", map[string]interface{}{"user_id": userID})
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pin hash lookup failed: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)); err != nil {
		return false, nil
	}
	return true, nil
}

// HashPin produces a bcrypt hash for storage, used by account
// provisioning tooling.
func HashPin(pin string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash pin: %w", err)
	}
	return string(hash), nil
}
