// Package events provides the in-process pub/sub bus that carries rule
// changes from the API handlers to websocket subscribers.
package events

import (
	"time"

	"grimm.is/pfw/internal/rules"
)

// EventType identifies the category of event.
type EventType string

const (
	EventRuleCreated EventType = "rule.created"
	EventRuleUpdated EventType = "rule.updated"
	EventRuleDeleted EventType = "rule.deleted"
)

// RuleEventTypes lists every rule event, in publish order of a typical
// create/edit/delete cycle.
var RuleEventTypes = []EventType{EventRuleCreated, EventRuleUpdated, EventRuleDeleted}

// Event is the core message passed through the event bus.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Data      any       `json:"data"`
}

// RuleChangeData is the payload of every rule event. For deletes Rule is
// the removed record and Index its position before removal.
type RuleChangeData struct {
	ID    string     `json:"id"`
	Index int        `json:"index"`
	Rule  rules.Rule `json:"rule"`
}
