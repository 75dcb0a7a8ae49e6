package nlu

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// SlotType identifies the expected value type of a slot.
type SlotType string

const (
	SlotAccount SlotType = "account"
	SlotAmount  SlotType = "amount"
	SlotPIN     SlotType = "pin"
	SlotCard    SlotType = "card"
)

// Candidate is one extracted value for a target slot type. Invalid
// candidates are reported so the caller can distinguish a badly formatted
// value from no value at all.
type Candidate struct {
	Value string
	Valid bool
}

// ErrNoCandidate is returned when nothing in the text matches the target
// slot type. This is distinct from an invalid candidate.
var ErrNoCandidate = errors.New("no candidate found")

var (
	accountRe  = regexp.MustCompile(`\b\d{4,6}\b`)
	pinRe      = regexp.MustCompile(`\b\d{4}\b`)
	cardRe     = regexp.MustCompile(`(?i)card\s*(?:number|no\.?)?\s*#?\s*(\d{4,6})\b`)
	currencyRe = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(-?\d+(?:\.\d+)?)\s*(?:rupees|rupee|rs\.?|inr|dollars?|usd)\b`),
		regexp.MustCompile(`(?i)(?:₹|rs\.?|inr|\$)\s*(-?\d+(?:\.\d+)?)\b`),
	}
	// "transfer 5000" marks 5000 as an amount even though it is
	// account-shaped.
	verbAmountRe  = regexp.MustCompile(`(?i)\b(?:transfer|send|pay)\s+(?:rs\.?|inr|₹|\$)?\s*(-?\d+(?:\.\d+)?)\b`)
	plainNumberRe = regexp.MustCompile(`-?\b\d+(?:\.\d+)?\b`)

	fromAccountRe = regexp.MustCompile(`(?i)\bfrom\s+(?:account\s+)?#?(\d{4,6})\b`)
	toAccountRe   = regexp.MustCompile(`(?i)\b(?:to|into)\s+(?:account\s+)?#?(\d{4,6})\b`)
)

// Extractor pulls typed slot candidates out of raw utterance text.
// It is rule-based and stateless; PIN values are returned to the caller for
// verification but must never be logged by anyone on the call path.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract returns all candidates for the target slot type in mention order.
// Users often self-correct mid-sentence, so callers should apply the
// last-match policy via LastValid.
func (e *Extractor) Extract(text string, slotType SlotType) ([]Candidate, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoCandidate
	}

	// A bare number is the answer to whatever slot is being collected.
	// It is validated against the target type, never guessed at.
	if IsNumericOnly(text) {
		return []Candidate{numericCandidate(text, slotType)}, nil
	}

	var cands []Candidate
	switch slotType {
	case SlotAccount:
		cands = e.extractAccounts(text)
	case SlotCard:
		cands = e.extractCards(text)
	case SlotAmount:
		cands = e.extractAmounts(text)
	case SlotPIN:
		cands = e.extractPINs(text)
	default:
		return nil, ErrNoCandidate
	}

	if len(cands) == 0 {
		return nil, ErrNoCandidate
	}
	return cands, nil
}

// LastValid applies the last-match policy: the most recently mentioned valid
// candidate wins. ok is false when no candidate is valid.
func LastValid(cands []Candidate) (Candidate, bool) {
	for i := len(cands) - 1; i >= 0; i-- {
		if cands[i].Valid {
			return cands[i], true
		}
	}
	return Candidate{}, false
}

// IsNumericOnly reports whether the input is purely numeric once separators
// are stripped (account numbers, PINs, amounts entered as bare values).
func IsNumericOnly(text string) bool {
	normalized := strings.TrimSpace(text)
	for _, cut := range []string{".", ",", "-"} {
		normalized = strings.ReplaceAll(normalized, cut, "")
	}
	if normalized == "" {
		return false
	}
	for _, r := range normalized {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func numericCandidate(text string, slotType SlotType) Candidate {
	value := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	switch slotType {
	case SlotAccount, SlotCard:
		digits := !strings.ContainsAny(value, ".-")
		return Candidate{Value: value, Valid: digits && len(value) >= 4 && len(value) <= 6}
	case SlotAmount:
		v, err := strconv.ParseFloat(value, 64)
		return Candidate{Value: value, Valid: err == nil && v > 0}
	case SlotPIN:
		digits := !strings.ContainsAny(value, ".-")
		return Candidate{Value: value, Valid: digits && len(value) == 4}
	}
	return Candidate{Value: value}
}

func (e *Extractor) extractAccounts(text string) []Candidate {
	var cands []Candidate
	for _, loc := range accountRe.FindAllStringIndex(text, -1) {
		if partOfDecimal(text, loc[0], loc[1]) {
			continue
		}
		cands = append(cands, Candidate{Value: text[loc[0]:loc[1]], Valid: true})
	}
	return cands
}

func (e *Extractor) extractCards(text string) []Candidate {
	var cands []Candidate
	for _, m := range cardRe.FindAllStringSubmatch(text, -1) {
		cands = append(cands, Candidate{Value: m[1], Valid: true})
	}
	if len(cands) > 0 {
		return cands
	}
	// Fall back to bare references when "card" isn't adjacent to the number.
	return e.extractAccounts(text)
}

// DirectionalAccounts pulls accounts tagged by "from"/"to" prepositions,
// so a mixed transfer utterance assigns sender and receiver correctly.
// Either result may be empty.
func (e *Extractor) DirectionalAccounts(text string) (from, to string) {
	if m := fromAccountRe.FindStringSubmatch(text); m != nil {
		from = m[1]
	}
	if m := toAccountRe.FindStringSubmatch(text); m != nil {
		to = m[1]
	}
	return from, to
}

func (e *Extractor) extractAmounts(text string) []Candidate {
	var cands []Candidate
	seen := map[string]bool{}

	for _, m := range verbAmountRe.FindAllStringSubmatch(text, -1) {
		cands = append(cands, amountCandidate(m[1]))
		seen[m[1]] = true
		seen[strings.TrimPrefix(m[1], "-")] = true
	}

	for _, re := range currencyRe {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if seen[m[1]] {
				continue
			}
			cands = append(cands, amountCandidate(m[1]))
			seen[m[1]] = true
		}
	}

	// Plain numbers may be amounts, but a bare 4-6 digit integer inside a
	// sentence is account-shaped and is left to the account extractor.
	for _, loc := range plainNumberRe.FindAllStringIndex(text, -1) {
		raw := text[loc[0]:loc[1]]
		if seen[raw] || seen[strings.TrimPrefix(raw, "-")] {
			continue
		}
		digits := strings.TrimPrefix(raw, "-")
		if !strings.Contains(digits, ".") && len(digits) >= 4 && len(digits) <= 6 {
			continue
		}
		cands = append(cands, amountCandidate(raw))
		seen[raw] = true
	}

	return cands
}

func (e *Extractor) extractPINs(text string) []Candidate {
	var cands []Candidate
	for _, loc := range pinRe.FindAllStringIndex(text, -1) {
		if partOfDecimal(text, loc[0], loc[1]) {
			continue
		}
		cands = append(cands, Candidate{Value: text[loc[0]:loc[1]], Valid: true})
	}
	return cands
}

func amountCandidate(raw string) Candidate {
	v, err := strconv.ParseFloat(raw, 64)
	return Candidate{Value: raw, Valid: err == nil && v > 0}
}

// partOfDecimal rejects digit runs that are really the fraction or integer
// part of a larger decimal number, e.g. the "1234" in "50.1234".
func partOfDecimal(text string, start, end int) bool {
	if start > 0 {
		prev := text[start-1]
		if prev == '.' || prev == ',' {
			return true
		}
	}
	if end < len(text) && text[end] == '.' {
		return true
	}
	return false
}
