package dialogue

import "time"

// State is the dialogue state machine's position for one session.
type State string

const (
	StateIdle                State = "IDLE"
	StateCollectingSlots     State = "COLLECTING_SLOTS"
	StateAwaitingConfirm     State = "AWAITING_CONFIRMATION"
	StateAwaitingPin         State = "AWAITING_PIN"
	StateAwaitingTopicSwitch State = "AWAITING_TOPIC_SWITCH"
	StateAwaitingClarify     State = "AWAITING_CLARIFICATION"
	StateCompleted           State = "COMPLETED"
	StateAborted             State = "ABORTED"
)

// Terminal reports whether the state ends the current flow. After a
// terminal turn the session record is cleared from the store.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// SlotValue is one filled slot. Slots keep their fill order so the
// confirmation summary and dispatch payload are deterministic.
type SlotValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Session is the persisted dialogue record for one conversation. It
// deliberately has no field for a PIN: PINs are verified within the
// turn that carries them and are never written to the store.
type Session struct {
	SessionID string      `json:"session_id"`
	UserID    string      `json:"user_id"`
	State     State       `json:"state"`
	Intent    string      `json:"intent,omitempty"`
	Slots     []SlotValue `json:"slots,omitempty"`

	// SlotIndex is the position of the next unfilled slot in the
	// intent's declared order.
	SlotIndex int `json:"slot_index"`

	// Reprompts counts consecutive failed attempts to fill the current
	// slot or resolve a clarification.
	Reprompts int `json:"reprompts"`

	// PinAttempts counts failed PIN verifications for the pending
	// transaction.
	PinAttempts int `json:"pin_attempts"`

	// Confirmed is set once the user approves the pending transaction.
	// A later slot change resets it, which forces re-confirmation and
	// re-entry of the PIN.
	Confirmed bool `json:"confirmed"`

	// PendingIntent holds the newly detected intent while the engine
	// waits for the user to approve abandoning the current one.
	PendingIntent string `json:"pending_intent,omitempty"`

	// Turns counts processed utterances for this session.
	Turns int `json:"turns"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession returns an idle session record.
func NewSession(sessionID, userID string) *Session {
	return &Session{
		SessionID: sessionID,
		UserID:    userID,
		State:     StateIdle,
		UpdatedAt: time.Now().UTC(),
	}
}

// Slot returns the value of a filled slot by name.
func (s *Session) Slot(name string) (string, bool) {
	for _, sv := range s.Slots {
		if sv.Name == name {
			return sv.Value, true
		}
	}
	return "", false
}

// SetSlot fills or overwrites a slot, preserving fill order for new
// slots.
func (s *Session) SetSlot(name, value string) {
	for i := range s.Slots {
		if s.Slots[i].Name == name {
			s.Slots[i].Value = value
			return
		}
	}
	s.Slots = append(s.Slots, SlotValue{Name: name, Value: value})
}

// SlotMap returns the filled slots as a map for dispatch.
func (s *Session) SlotMap() map[string]string {
	m := make(map[string]string, len(s.Slots))
	for _, sv := range s.Slots {
		m[sv.Name] = sv.Value
	}
	return m
}

// ResetFlow clears all per-intent progress and returns the session to
// idle. The session identity is kept.
func (s *Session) ResetFlow() {
	s.State = StateIdle
	s.Intent = ""
	s.Slots = nil
	s.SlotIndex = 0
	s.Reprompts = 0
	s.PinAttempts = 0
	s.Confirmed = false
	s.PendingIntent = ""
}
