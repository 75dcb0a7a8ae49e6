// Package models defines the wire types exchanged over the turn transport.
package models

// TurnRequest is one user utterance submitted for processing.
// AccountNumber optionally carries the caller's selected account, used
// to pre-fill single-account read intents.
type TurnRequest struct {
	SessionID     string `json:"session_id"`
	UserID        string `json:"user_id"`
	Text          string `json:"text"`
	AccountNumber string `json:"account_number,omitempty"`
}

// TurnResponse is the engine's answer to one turn.
type TurnResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
	State     string `json:"state"`
	Intent    string `json:"intent,omitempty"`
	Done      bool   `json:"done"`
	ErrorCode string `json:"error_code,omitempty"`
}
