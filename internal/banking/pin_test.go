package banking

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankbot/internal/common/logger"
)

func newTestVerifier(t *testing.T) (*PinVerifier, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPinVerifier(db, logger.NewTestLogger(t)), mock
}

func TestVerifyPin(t *testing.T) {
	hash, err := HashPin("4321")
	require.NoError(t, err)

	tests := []struct {
		name string
		pin  string
		want bool
	}{
		{name: "correct pin", pin: "4321", want: true},
		{name: "wrong pin", pin: "9999", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, mock := newTestVerifier(t)
			mock.ExpectQuery("SELECT pin_hash FROM users").
				WithArgs("user-1").
				WillReturnRows(sqlmock.NewRows([]string{"pin_hash"}).AddRow(hash))

			ok, err := v.VerifyPin(context.Background(), "user-1", tt.pin)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestVerifyPinUnknownUser(t *testing.T) {
	v, mock := newTestVerifier(t)
	mock.ExpectQuery("SELECT pin_hash FROM users").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"pin_hash"}))

	ok, err := v.VerifyPin(context.Background(), "ghost", "4321")
	require.NoError(t, err)
	assert.False(t, ok)
}
