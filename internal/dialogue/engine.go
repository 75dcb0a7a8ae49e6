// Package dialogue implements the slot-filling state machine that drives
// multi-turn banking conversations.
package dialogue

import (
	"context"
	"fmt"
	"strings"

	"bankbot/internal/common/errors"
	"bankbot/internal/common/logger"
	"bankbot/internal/nlu"
)

// PendingTransaction is a fully slot-filled operation awaiting dispatch.
// It never carries the PIN: the PIN is verified separately and discarded.
type PendingTransaction struct {
	SessionID string
	UserID    string
	Intent    string
	Operation OpKind
	Slots     map[string]string
}

// DispatchResult is the banking collaborator's answer to one dispatch.
type DispatchResult struct {
	CorrelationToken string
	Message          string
	Data             map[string]interface{}
}

// PinVerifier checks a transaction PIN against the security collaborator.
// Implementations must not log or persist the plaintext PIN.
type PinVerifier interface {
	VerifyPin(ctx context.Context, userID, pin string) (bool, error)
}

// Dispatcher hands a completed transaction to the banking collaborator.
type Dispatcher interface {
	Dispatch(ctx context.Context, tx *PendingTransaction) (*DispatchResult, error)
}

// Responder answers out-of-domain utterances, typically via an LLM.
type Responder interface {
	Answer(ctx context.Context, text string) (string, error)
}

// InteractionRecord captures one turn's NLU outcome for offline analysis.
type InteractionRecord struct {
	SessionID  string
	UserID     string
	Text       string
	Intent     string
	Confidence float64
	Decision   nlu.Decision
	State      State
}

// InteractionLogger persists NLU interaction records. May be nil.
type InteractionLogger interface {
	LogInteraction(ctx context.Context, rec InteractionRecord) error
}

// EngineConfig bounds the engine's local recovery loops.
type EngineConfig struct {
	MaxReprompts   int
	MaxPinAttempts int
}

// Turn is the engine's answer to one utterance.
type Turn struct {
	SessionID string
	Reply     string
	State     State
	Intent    string
	Done      bool
	ErrorCode errors.ErrorCode
}

// TurnInput is one user utterance plus its session context.
// DefaultAccount, when set, fills a single account slot for read-only
// intents so authenticated users are not re-asked for their own account.
type TurnInput struct {
	SessionID      string
	UserID         string
	Text           string
	DefaultAccount string
}

// Engine is the dialogue state machine. One Engine serves all sessions;
// per-session state lives in the Store and is passed through each turn.
type Engine struct {
	catalog    *Catalog
	gate       *nlu.Gate
	classifier nlu.Classifier
	extractor  *nlu.Extractor
	store      Store
	pins       PinVerifier
	dispatcher Dispatcher
	responder  Responder
	nluLog     InteractionLogger
	cfg        EngineConfig
	log        logger.Logger
}

func NewEngine(
	catalog *Catalog,
	gate *nlu.Gate,
	classifier nlu.Classifier,
	extractor *nlu.Extractor,
	store Store,
	pins PinVerifier,
	dispatcher Dispatcher,
	responder Responder,
	nluLog InteractionLogger,
	cfg EngineConfig,
	log logger.Logger,
) *Engine {
	if cfg.MaxReprompts <= 0 {
		cfg.MaxReprompts = 3
	}
	if cfg.MaxPinAttempts <= 0 {
		cfg.MaxPinAttempts = 3
	}
	return &Engine{
		catalog:    catalog,
		gate:       gate,
		classifier: classifier,
		extractor:  extractor,
		store:      store,
		pins:       pins,
		dispatcher: dispatcher,
		responder:  responder,
		nluLog:     nluLog,
		cfg:        cfg,
		log:        log,
	}
}

var cancelPhrases = []string{"cancel", "stop", "abort", "never mind", "nevermind", "forget it", "quit"}

var affirmativeWords = []string{"yes", "yeah", "yep", "sure", "confirm", "proceed", "ok", "okay", "go ahead", "do it"}

var negativeWords = []string{"no", "nope", "don't", "do not", "negative"}

func matchesAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if text == p || strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func isCancel(text string) bool { return matchesAny(text, cancelPhrases) }

func isAffirmative(text string) bool { return matchesAny(text, affirmativeWords) }

func isNegative(text string) bool {
	// "no" alone or as a word; substring match would also hit "now".
	for _, w := range negativeWords {
		if text == w {
			return true
		}
		if strings.Contains(" "+text+" ", " "+w+" ") {
			return true
		}
	}
	return false
}

// HandleTurn processes one utterance and returns the next prompt or
// terminal result. Infrastructure failures (session store) return an
// error; conversational failures are reported in the Turn itself.
func (e *Engine) HandleTurn(ctx context.Context, in TurnInput) (*Turn, error) {
	session, err := e.store.Get(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		session = NewSession(in.SessionID, in.UserID)
	}
	session.Turns++

	text := strings.ToLower(strings.TrimSpace(in.Text))

	// A cancel at any non-terminal state aborts immediately. Pending
	// transactions are discarded, never dispatched.
	if isCancel(text) && !session.State.Terminal() {
		return e.finish(ctx, session, StateAborted, "Okay, I've cancelled that. Anything else I can help with?", "")
	}

	var turn *Turn
	switch session.State {
	case StateAwaitingPin:
		turn, err = e.handlePinTurn(ctx, session, in.Text)
	case StateAwaitingConfirm:
		turn, err = e.handleConfirmTurn(ctx, session, text)
	case StateAwaitingTopicSwitch:
		turn, err = e.handleTopicSwitchTurn(ctx, session, text, in)
	case StateCollectingSlots:
		turn, err = e.handleSlotTurn(ctx, session, in)
	default:
		turn, err = e.handleIdleTurn(ctx, session, in)
	}
	if err != nil {
		return nil, err
	}

	if !turn.Done {
		if err := e.store.Save(ctx, session); err != nil {
			return nil, err
		}
	}
	return turn, nil
}

// handleIdleTurn routes a fresh utterance: domain gate first, then
// intent classification. Clarification retries re-enter here and keep
// counting against the re-prompt budget.
func (e *Engine) handleIdleTurn(ctx context.Context, session *Session, in TurnInput) (*Turn, error) {
	pred, err := e.classifier.Classify(ctx, in.Text)
	if err != nil {
		return nil, err
	}
	decision := e.gate.Decide(in.Text, pred)
	e.recordInteraction(ctx, session, in, pred, decision)

	switch decision {
	case nlu.DecisionOutOfDomain:
		reply, err := e.answerOutOfDomain(ctx, in.Text)
		if err != nil {
			code := errors.CodeOf(err)
			session.ResetFlow()
			return e.turn(session, "I couldn't look that up right now. Please try again in a moment.", code), nil
		}
		session.ResetFlow()
		return e.turn(session, reply, ""), nil

	case nlu.DecisionAmbiguous:
		session.Reprompts++
		if session.Reprompts > e.cfg.MaxReprompts {
			return e.finish(ctx, session, StateAborted,
				"I'm sorry, I couldn't work out what you need. Please start again.",
				errors.ErrCodeRepromptsExceeded)
		}
		session.State = StateAwaitingClarify
		return e.turn(session,
			"I'm not sure if that's a banking request. Could you rephrase it? For example: \"check my balance\" or \"transfer money\".",
			errors.ErrCodeDomainAmbiguous), nil
	}

	return e.startIntent(ctx, session, pred.Label, in)
}

// startIntent begins slot collection for a classified intent,
// opportunistically filling slots already present in the utterance.
func (e *Engine) startIntent(ctx context.Context, session *Session, intentName string, in TurnInput) (*Turn, error) {
	def, ok := e.catalog.Intent(intentName)
	if !ok {
		session.ResetFlow()
		if nlu.IsNumericOnly(in.Text) {
			return e.turn(session, "What would you like to do? For example: \"check my balance\" or \"transfer money\".", ""), nil
		}
		reply, err := e.answerOutOfDomain(ctx, in.Text)
		if err != nil {
			return e.turn(session, "I couldn't look that up right now. Please try again in a moment.", errors.CodeOf(err)), nil
		}
		return e.turn(session, reply, ""), nil
	}

	session.ResetFlow()
	session.Intent = def.Name
	session.State = StateCollectingSlots

	if _, rejected := e.fillFromUtterance(session, def, in); rejected {
		return e.repromptSlot(ctx, session,
			"The receiving account must be different from the sending account. "+def.Slots[session.SlotIndex].Prompt)
	}
	return e.advance(ctx, session, def)
}

// fillFromUtterance extracts as many of the intent's remaining slots as
// the utterance carries, in declared order. A bare number answers only
// the slot currently being collected; richer utterances may fill several
// slots at once, with "from"/"to" prepositions assigning sender and
// receiver accounts and the amount mention reserved first so
// "transfer 5000" is never read as an account number.
// advanced reports whether at least one slot was filled; rejected is set
// when a value was refused by a cross-slot rule.
func (e *Engine) fillFromUtterance(session *Session, def *IntentDef, in TurnInput) (advanced, rejected bool) {
	if session.SlotIndex >= len(def.Slots) {
		return false, false
	}

	if nlu.IsNumericOnly(in.Text) {
		slot := def.Slots[session.SlotIndex]
		cands, err := e.extractor.Extract(in.Text, slot.Type)
		if err != nil {
			return false, false
		}
		c, ok := nlu.LastValid(cands)
		if !ok {
			return false, false
		}
		if !e.applySlot(session, def, slot, c.Value) {
			return false, true
		}
		return true, false
	}

	typeCount := make(map[nlu.SlotType]int)
	needsAmount := false
	for i := session.SlotIndex; i < len(def.Slots); i++ {
		typeCount[def.Slots[i].Type]++
		if def.Slots[i].Type == nlu.SlotAmount {
			needsAmount = true
		}
	}

	dirFrom, dirTo := e.extractor.DirectionalAccounts(in.Text)

	var amountValue string
	if needsAmount {
		if cands, err := e.extractor.Extract(in.Text, nlu.SlotAmount); err == nil {
			if c, ok := nlu.LastValid(cands); ok {
				amountValue = c.Value
			}
		}
	}

	accounts := e.accountCandidates(in.Text, dirFrom, dirTo, amountValue)
	consumedAccounts := 0

	for i := session.SlotIndex; i < len(def.Slots); i++ {
		slot := def.Slots[i]

		var value string
		switch slot.Type {
		case nlu.SlotAmount:
			value = amountValue

		case nlu.SlotAccount:
			switch {
			case slot.Name == "from_account" && dirFrom != "":
				value = dirFrom
			case slot.Name == "to_account" && dirTo != "":
				value = dirTo
			case typeCount[nlu.SlotAccount] == 1:
				if c, ok := nlu.LastValid(accounts); ok {
					value = c.Value
				}
			default:
				for consumedAccounts < len(accounts) {
					c := accounts[consumedAccounts]
					consumedAccounts++
					if c.Valid {
						value = c.Value
						break
					}
				}
			}
			if value == "" && typeCount[nlu.SlotAccount] == 1 && in.DefaultAccount != "" {
				value = in.DefaultAccount
			}

		default:
			if cands, err := e.extractor.Extract(in.Text, slot.Type); err == nil {
				if c, ok := nlu.LastValid(cands); ok {
					value = c.Value
				}
			}
		}

		if value == "" {
			return advanced, false
		}
		if !e.applySlot(session, def, slot, value) {
			return advanced, true
		}
		advanced = true
	}
	return advanced, false
}

// accountCandidates returns the generic account mentions with one
// instance each of the directionally assigned accounts and the reserved
// amount removed.
func (e *Engine) accountCandidates(text, dirFrom, dirTo, amountValue string) []nlu.Candidate {
	cands, err := e.extractor.Extract(text, nlu.SlotAccount)
	if err != nil {
		return nil
	}

	reserved := map[string]int{}
	for _, v := range []string{dirFrom, dirTo, amountValue} {
		if v != "" {
			reserved[v]++
		}
	}

	out := make([]nlu.Candidate, 0, len(cands))
	for _, c := range cands {
		if reserved[c.Value] > 0 {
			reserved[c.Value]--
			continue
		}
		out = append(out, c)
	}
	return out
}

// applySlot commits one slot value, enforcing cross-slot rules. Returns
// false when the value was rejected.
func (e *Engine) applySlot(session *Session, def *IntentDef, slot SlotDef, value string) bool {
	if def.Dispatch == OpTransfer && slot.Name == "to_account" {
		if from, ok := session.Slot("from_account"); ok && from == value {
			return false
		}
	}
	session.SetSlot(slot.Name, value)
	if session.SlotIndex < len(def.Slots) && def.Slots[session.SlotIndex].Name == slot.Name {
		session.SlotIndex++
	}
	// Changing a slot after confirmation stales the approval and any
	// PIN entered for it.
	session.Confirmed = false
	return true
}

// advance moves the machine past slot collection: prompts for the next
// missing slot, or proceeds to confirmation, PIN, or dispatch.
func (e *Engine) advance(ctx context.Context, session *Session, def *IntentDef) (*Turn, error) {
	if session.SlotIndex < len(def.Slots) {
		session.State = StateCollectingSlots
		return e.turn(session, def.Slots[session.SlotIndex].Prompt, ""), nil
	}

	if def.RequiresConfirm && !session.Confirmed {
		session.State = StateAwaitingConfirm
		session.Reprompts = 0
		return e.turn(session, e.confirmPrompt(session, def), ""), nil
	}

	if def.RequiresPin {
		session.State = StateAwaitingPin
		session.Reprompts = 0
		return e.turn(session, "Please enter your 4-digit transaction PIN to authorize this.", ""), nil
	}

	return e.dispatch(ctx, session, def)
}

func (e *Engine) confirmPrompt(session *Session, def *IntentDef) string {
	switch def.Dispatch {
	case OpTransfer:
		amount, _ := session.Slot("amount")
		from, _ := session.Slot("from_account")
		to, _ := session.Slot("to_account")
		return fmt.Sprintf(def.ConfirmTemplate, amount, from, to)
	case OpBlockCard, OpUnblock:
		card, _ := session.Slot("card_ref")
		return fmt.Sprintf(def.ConfirmTemplate, card)
	default:
		return fmt.Sprintf("Proceed with %s? (yes/no)", def.Name)
	}
}

// handleSlotTurn fills the current slot from a follow-up utterance,
// checking first for an explicit topic switch.
func (e *Engine) handleSlotTurn(ctx context.Context, session *Session, in TurnInput) (*Turn, error) {
	def, ok := e.catalog.Intent(session.Intent)
	if !ok {
		session.ResetFlow()
		return e.handleIdleTurn(ctx, session, in)
	}

	// A confidently classified different intent is a topic switch; an
	// in-progress intent is never silently abandoned.
	if !nlu.IsNumericOnly(in.Text) {
		pred, err := e.classifier.Classify(ctx, in.Text)
		if err == nil && pred.Label != session.Intent {
			if _, known := e.catalog.Intent(pred.Label); known && e.gate.DecideScore(pred.Label, pred.Confidence) == nlu.DecisionInDomain {
				session.PendingIntent = pred.Label
				session.State = StateAwaitingTopicSwitch
				return e.turn(session,
					fmt.Sprintf("You have an unfinished %s request. Abandon it and start %s instead? (yes/no)", session.Intent, pred.Label),
					""), nil
			}
		}
	}

	slot := def.Slots[session.SlotIndex]
	advanced, rejected := e.fillFromUtterance(session, def, in)
	if rejected {
		return e.repromptSlot(ctx, session,
			"The receiving account must be different from the sending account. "+def.Slots[session.SlotIndex].Prompt)
	}
	if !advanced {
		return e.repromptSlot(ctx, session, "I didn't catch a valid value. "+slot.Prompt)
	}

	session.Reprompts = 0
	return e.advance(ctx, session, def)
}

func (e *Engine) repromptSlot(ctx context.Context, session *Session, prompt string) (*Turn, error) {
	session.Reprompts++
	if session.Reprompts > e.cfg.MaxReprompts {
		return e.finish(ctx, session, StateAborted,
			"I'm sorry, I couldn't get the details I need. The request has been cancelled.",
			errors.ErrCodeRepromptsExceeded)
	}
	return e.turn(session, prompt, errors.ErrCodeExtractionFailed), nil
}

// handleConfirmTurn resolves the yes/no confirmation for a sensitive
// transaction.
func (e *Engine) handleConfirmTurn(ctx context.Context, session *Session, text string) (*Turn, error) {
	def, ok := e.catalog.Intent(session.Intent)
	if !ok {
		return e.finish(ctx, session, StateAborted, "Something went wrong with this request. Please start again.", "")
	}

	switch {
	case isNegative(text):
		return e.finish(ctx, session, StateAborted, "Understood, I won't proceed. Anything else I can help with?", "")
	case isAffirmative(text):
		session.Confirmed = true
		return e.advance(ctx, session, def)
	default:
		session.Reprompts++
		if session.Reprompts > e.cfg.MaxReprompts {
			return e.finish(ctx, session, StateAborted,
				"I couldn't get a clear confirmation, so I've cancelled the request.",
				errors.ErrCodeRepromptsExceeded)
		}
		return e.turn(session, "Please answer yes or no: "+e.confirmPrompt(session, def), ""), nil
	}
}

// handleTopicSwitchTurn resolves whether to abandon the in-progress
// intent in favour of the newly detected one.
func (e *Engine) handleTopicSwitchTurn(ctx context.Context, session *Session, text string, in TurnInput) (*Turn, error) {
	pending := session.PendingIntent

	switch {
	case isAffirmative(text):
		return e.startIntent(ctx, session, pending, TurnInput{
			SessionID:      in.SessionID,
			UserID:         in.UserID,
			DefaultAccount: in.DefaultAccount,
		})
	case isNegative(text):
		session.PendingIntent = ""
		def, ok := e.catalog.Intent(session.Intent)
		if !ok {
			return e.finish(ctx, session, StateAborted, "Something went wrong with this request. Please start again.", "")
		}
		session.State = StateCollectingSlots
		if session.SlotIndex < len(def.Slots) {
			return e.turn(session, "Okay, continuing. "+def.Slots[session.SlotIndex].Prompt, ""), nil
		}
		return e.advance(ctx, session, def)
	default:
		session.Reprompts++
		if session.Reprompts > e.cfg.MaxReprompts {
			return e.finish(ctx, session, StateAborted,
				"I couldn't get a clear answer, so I've cancelled the request.",
				errors.ErrCodeRepromptsExceeded)
		}
		return e.turn(session, "Please answer yes to switch, or no to continue.", ""), nil
	}
}

// handlePinTurn verifies the transaction PIN and dispatches on success.
// The PIN travels from extraction to the verifier and is never stored,
// logged, or echoed.
func (e *Engine) handlePinTurn(ctx context.Context, session *Session, rawText string) (*Turn, error) {
	def, ok := e.catalog.Intent(session.Intent)
	if !ok {
		return e.finish(ctx, session, StateAborted, "Something went wrong with this request. Please start again.", "")
	}

	cands, err := e.extractor.Extract(rawText, nlu.SlotPIN)
	pin, found := nlu.LastValid(cands)
	if err != nil || !found {
		return e.pinFailure(ctx, session, "That doesn't look like a 4-digit PIN. Please try again.")
	}

	verified, err := e.pins.VerifyPin(ctx, session.UserID, pin.Value)
	if err != nil {
		e.log.Error("pin verification call failed", map[string]interface{}{
			"session_id": session.SessionID,
			"error":      err.Error(),
		})
		return e.pinFailure(ctx, session, "I couldn't verify your PIN right now. Please try again.")
	}
	if !verified {
		return e.pinFailure(ctx, session, "That PIN is incorrect. Please try again.")
	}

	session.PinAttempts = 0
	return e.dispatch(ctx, session, def)
}

func (e *Engine) pinFailure(ctx context.Context, session *Session, prompt string) (*Turn, error) {
	session.PinAttempts++
	e.log.Warn("pin attempt failed", map[string]interface{}{
		"session_id": session.SessionID,
		"attempt":    session.PinAttempts,
	})
	if session.PinAttempts >= e.cfg.MaxPinAttempts {
		return e.finish(ctx, session, StateAborted,
			"Too many failed PIN attempts. The request has been cancelled for your security.",
			errors.ErrCodePinAttemptsExceeded)
	}
	return e.turn(session, prompt, errors.ErrCodePinVerifyFailed), nil
}

// dispatch hands the completed transaction to the banking collaborator.
// It runs at most once per pending transaction: every outcome below is
// terminal, and failures are never retried automatically.
func (e *Engine) dispatch(ctx context.Context, session *Session, def *IntentDef) (*Turn, error) {
	tx := &PendingTransaction{
		SessionID: session.SessionID,
		UserID:    session.UserID,
		Intent:    def.Name,
		Operation: def.Dispatch,
		Slots:     session.SlotMap(),
	}

	result, err := e.dispatcher.Dispatch(ctx, tx)
	if err != nil {
		code := errors.CodeOf(err)
		e.log.Error("dispatch failed", map[string]interface{}{
			"session_id": session.SessionID,
			"intent":     def.Name,
			"code":       string(code),
		})
		if code == errors.ErrCodeDispatchUnknown {
			return e.finish(ctx, session, StateAborted,
				"I couldn't confirm whether that went through. Please check your transaction history before trying again.",
				code)
		}
		reply := "I'm sorry, that operation failed."
		if errors.IsCode(err, errors.ErrCodeInsufficientFunds) {
			reply = "I'm sorry, there isn't enough balance for that transfer."
		} else if errors.IsCode(err, errors.ErrCodeAccountNotFound) {
			reply = "I couldn't find that account. Please check the account number and start again."
		}
		return e.finish(ctx, session, StateAborted, reply, code)
	}

	e.log.Info("operation dispatched", map[string]interface{}{
		"session_id":        session.SessionID,
		"intent":            def.Name,
		"correlation_token": result.CorrelationToken,
	})
	return e.finish(ctx, session, StateCompleted, result.Message, "")
}

// finish commits a terminal state and clears the session record.
func (e *Engine) finish(ctx context.Context, session *Session, state State, reply string, code errors.ErrorCode) (*Turn, error) {
	session.State = state
	if err := e.store.Delete(ctx, session.SessionID); err != nil {
		e.log.Warn("failed to clear session", map[string]interface{}{
			"session_id": session.SessionID,
			"error":      err.Error(),
		})
	}
	return &Turn{
		SessionID: session.SessionID,
		Reply:     reply,
		State:     state,
		Intent:    session.Intent,
		Done:      true,
		ErrorCode: code,
	}, nil
}

func (e *Engine) turn(session *Session, reply string, code errors.ErrorCode) *Turn {
	return &Turn{
		SessionID: session.SessionID,
		Reply:     reply,
		State:     session.State,
		Intent:    session.Intent,
		ErrorCode: code,
	}
}

func (e *Engine) answerOutOfDomain(ctx context.Context, text string) (string, error) {
	if e.responder == nil {
		return "I can help with banking questions like balances, transfers, and card blocking.", nil
	}
	return e.responder.Answer(ctx, text)
}

func (e *Engine) recordInteraction(ctx context.Context, session *Session, in TurnInput, pred nlu.Prediction, decision nlu.Decision) {
	if e.nluLog == nil {
		return
	}
	rec := InteractionRecord{
		SessionID:  session.SessionID,
		UserID:     session.UserID,
		Text:       in.Text,
		Intent:     pred.Label,
		Confidence: pred.Confidence,
		Decision:   decision,
		State:      session.State,
	}
	if err := e.nluLog.LogInteraction(ctx, rec); err != nil {
		e.log.Warn("failed to record nlu interaction", map[string]interface{}{
			"session_id": session.SessionID,
			"error":      err.Error(),
		})
	}
}
