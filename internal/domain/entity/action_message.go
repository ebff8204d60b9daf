package entity

import (
	"encoding/json"
	"fmt"
)

// ActionKind is the severity of an ActionMessage.
type ActionKind uint8

const (
	ActionAllowed ActionKind = iota
	ActionWarning
	ActionBlocking
)

func (k ActionKind) String() string {
	switch k {
	case ActionAllowed:
		return "allowed"
	case ActionWarning:
		return "warning"
	case ActionBlocking:
		return "blocking"
	default:
		return fmt.Sprintf("ActionKind(%d)", uint8(k))
	}
}

// ActionCode identifies which rule produced a message.
type ActionCode string

const (
	CodeNone               ActionCode = ""
	CodeNotConnected       ActionCode = "NOT_CONNECTED"
	CodeNoActiveGroup      ActionCode = "NO_ACTIVE_GROUP"
	CodeNoActionBundle     ActionCode = "NO_ACTION_BUNDLE"
	CodeInvalidAmount      ActionCode = "INVALID_AMOUNT"
	CodeBankPaused         ActionCode = "BANK_PAUSED"
	CodeLoopCheck          ActionCode = "LOOP_CHECK"
	CodeWithdrawCheck      ActionCode = "WITHDRAW_CHECK"
	CodeRepayCheck         ActionCode = "REPAY_CHECK"
	CodePriceImpactWarning ActionCode = "PRICE_IMPACT_WARNING"
	CodePriceImpactError   ActionCode = "PRICE_IMPACT_ERROR"
)

// ActionMessage is an advisory or blocking notice about a prospective action.
// Use the Allowed, Warning and Blocking constructors.
type ActionMessage struct {
	Kind        ActionKind
	Code        ActionCode
	Description string
}

// Allowed is the explicit permit emitted when no rule fires.
func Allowed() ActionMessage {
	return ActionMessage{Kind: ActionAllowed}
}

// Warning returns a non-blocking message.
func Warning(code ActionCode, description string) ActionMessage {
	return ActionMessage{Kind: ActionWarning, Code: code, Description: description}
}

// Blocking returns a message that prevents submission.
func Blocking(code ActionCode, description string) ActionMessage {
	return ActionMessage{Kind: ActionBlocking, Code: code, Description: description}
}

// IsEnabled is false only for blocking messages.
func (m ActionMessage) IsEnabled() bool {
	return m.Kind != ActionBlocking
}

func (m ActionMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		IsEnabled   bool       `json:"isEnabled"`
		Severity    string     `json:"severity"`
		Code        ActionCode `json:"code,omitempty"`
		Description string     `json:"description,omitempty"`
	}{
		IsEnabled:   m.IsEnabled(),
		Severity:    m.Kind.String(),
		Code:        m.Code,
		Description: m.Description,
	})
}

// AnyBlocking reports whether msgs contains a blocking message.
func AnyBlocking(msgs []ActionMessage) bool {
	for _, m := range msgs {
		if !m.IsEnabled() {
			return true
		}
	}
	return false
}
