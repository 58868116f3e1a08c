package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Condition string

const (
	ConditionAbove Condition = "ABOVE"
	ConditionBelow Condition = "BELOW"
)

func (c Condition) Valid() bool {
	return c == ConditionAbove || c == ConditionBelow
}

// UnmarshalText accepts any letter case ("above", "Below").
func (c *Condition) UnmarshalText(b []byte) error {
	*c = Condition(strings.ToUpper(strings.TrimSpace(string(b))))
	return nil
}

// AlertRule is a user-registered price threshold. Once fired it never
// reactivates.
type AlertRule struct {
	ID          string          `json:"id"`
	Symbol      string          `json:"symbol"`
	Condition   Condition       `json:"condition"`
	TargetPrice decimal.Decimal `json:"target_price"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	TriggeredAt *time.Time      `json:"triggered_at,omitempty"`
	// TriggerPrice is the price that fired the rule.
	TriggerPrice *decimal.Decimal `json:"trigger_price,omitempty"`
}

// Reached reports whether price satisfies the rule. Both bounds are inclusive.
func (r AlertRule) Reached(price decimal.Decimal) bool {
	switch r.Condition {
	case ConditionAbove:
		return price.GreaterThanOrEqual(r.TargetPrice)
	case ConditionBelow:
		return price.LessThanOrEqual(r.TargetPrice)
	default:
		return false
	}
}
