package dialogue

import (
	"encoding/json"
	"fmt"
	"os"

	"bankbot/internal/common/validation"
	"bankbot/internal/nlu"
)

// OpKind names the backend operation an intent dispatches to once its
// slots are filled and confirmed.
type OpKind string

const (
	OpBalance   OpKind = "balance"
	OpTransfer  OpKind = "transfer"
	OpBlockCard OpKind = "block_card"
	OpUnblock   OpKind = "unblock_card"
	OpHistory   OpKind = "history"
	OpATMLookup OpKind = "atm_lookup"
	OpLoanInfo  OpKind = "loan_info"
	OpNone      OpKind = "none"
)

// SlotDef declares one slot an intent needs, in fill order.
type SlotDef struct {
	Name   string       `json:"name"`
	Type   nlu.SlotType `json:"type"`
	Prompt string       `json:"prompt"`
}

// IntentDef declares a dialogue intent: its ordered slots, whether it
// needs an explicit confirmation step, and the operation it dispatches.
type IntentDef struct {
	Name            string    `json:"name"`
	Slots           []SlotDef `json:"slots"`
	RequiresConfirm bool      `json:"requires_confirm"`
	RequiresPin     bool      `json:"requires_pin"`
	Dispatch        OpKind    `json:"dispatch"`
	ConfirmTemplate string    `json:"confirm_template,omitempty"`
}

// Catalog is the set of intents the engine can drive. It is loaded from
// configuration, validated, and treated as immutable afterwards.
type Catalog struct {
	Intents []IntentDef `json:"intents"`

	byName map[string]*IntentDef
}

// Intent looks up an intent definition by classifier label.
func (c *Catalog) Intent(name string) (*IntentDef, bool) {
	def, ok := c.byName[name]
	return def, ok
}

// IntentNames returns the catalog's intent labels, used to seed the
// domain gate's banking-intent set.
func (c *Catalog) IntentNames() []string {
	names := make([]string, 0, len(c.Intents))
	for i := range c.Intents {
		names = append(names, c.Intents[i].Name)
	}
	return names
}

func (c *Catalog) index() {
	c.byName = make(map[string]*IntentDef, len(c.Intents))
	for i := range c.Intents {
		c.byName[c.Intents[i].Name] = &c.Intents[i]
	}
}

// validate enforces the structural rules the JSON schema cannot express:
// a PIN slot, when present, must be the final slot, and an intent that
// requires a PIN must not also declare a pin slot (the PIN is collected
// in a dedicated verification step, never stored with the other slots).
func (c *Catalog) validate() error {
	seen := make(map[string]bool, len(c.Intents))
	for i := range c.Intents {
		def := &c.Intents[i]
		if seen[def.Name] {
			return fmt.Errorf("duplicate intent %q", def.Name)
		}
		seen[def.Name] = true

		slotNames := make(map[string]bool, len(def.Slots))
		for _, slot := range def.Slots {
			if slotNames[slot.Name] {
				return fmt.Errorf("intent %q: duplicate slot %q", def.Name, slot.Name)
			}
			slotNames[slot.Name] = true
			if slot.Type == nlu.SlotPIN {
				return fmt.Errorf("intent %q: pin must not be declared as slot %q; use requires_pin", def.Name, slot.Name)
			}
		}
		if def.RequiresPin && !def.RequiresConfirm {
			return fmt.Errorf("intent %q: requires_pin implies requires_confirm", def.Name)
		}
	}
	return nil
}

// LoadCatalog reads and validates a catalog JSON file. An empty path
// returns the compiled-in default catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog validates raw catalog JSON against the schema and then
// applies the semantic checks.
func ParseCatalog(data []byte) (*Catalog, error) {
	if err := validation.ValidateCatalogJSON(data); err != nil {
		return nil, err
	}

	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := cat.validate(); err != nil {
		return nil, err
	}
	cat.index()
	return &cat, nil
}

// DefaultCatalog is the compiled-in intent set, matching the standard
// banking deployment.
func DefaultCatalog() *Catalog {
	cat := &Catalog{
		Intents: []IntentDef{
			{
				Name: nlu.IntentCheckBalance,
				Slots: []SlotDef{
					{Name: "account_number", Type: nlu.SlotAccount, Prompt: "Which account would you like to check? Please provide the account number."},
				},
				Dispatch: OpBalance,
			},
			{
				Name: nlu.IntentTransferMoney,
				Slots: []SlotDef{
					{Name: "from_account", Type: nlu.SlotAccount, Prompt: "Which account would you like to transfer from?"},
					{Name: "to_account", Type: nlu.SlotAccount, Prompt: "Which account should receive the money?"},
					{Name: "amount", Type: nlu.SlotAmount, Prompt: "How much would you like to transfer?"},
				},
				RequiresConfirm: true,
				RequiresPin:     true,
				Dispatch:        OpTransfer,
				ConfirmTemplate: "Transfer %s from account %s to account %s. Shall I proceed?",
			},
			{
				Name: nlu.IntentBlockCard,
				Slots: []SlotDef{
					{Name: "card_ref", Type: nlu.SlotCard, Prompt: "Which card would you like to block? You can give the last 4 digits."},
				},
				RequiresConfirm: true,
				RequiresPin:     true,
				Dispatch:        OpBlockCard,
				ConfirmTemplate: "Block card %s. Shall I proceed?",
			},
			{
				Name: nlu.IntentUnblockCard,
				Slots: []SlotDef{
					{Name: "card_ref", Type: nlu.SlotCard, Prompt: "Which card would you like to unblock? You can give the last 4 digits."},
				},
				RequiresConfirm: true,
				RequiresPin:     true,
				Dispatch:        OpUnblock,
				ConfirmTemplate: "Unblock card %s. Shall I proceed?",
			},
			{
				Name: nlu.IntentTransactionHistory,
				Slots: []SlotDef{
					{Name: "account_number", Type: nlu.SlotAccount, Prompt: "Which account's recent transactions would you like to see?"},
				},
				Dispatch: OpHistory,
			},
			{
				Name:     nlu.IntentFindATM,
				Dispatch: OpATMLookup,
			},
			{
				Name:     nlu.IntentLoanInfo,
				Dispatch: OpLoanInfo,
			},
		},
	}
	cat.index()
	return cat
}
