package domain

import (
	"strings"
	"time"
)

// Priority represents how strongly parents should act on an action item
type Priority string

const (
	PriorityMustDo            Priority = "must_do"
	PriorityHighlyRecommended Priority = "highly_recommended"
	PriorityOptional          Priority = "optional"
)

// Priorities lists the buckets in digest order
var Priorities = []Priority{PriorityMustDo, PriorityHighlyRecommended, PriorityOptional}

// Rank returns the bucket position of the priority, lower first
func (p Priority) Rank() int {
	switch p {
	case PriorityMustDo:
		return 0
	case PriorityHighlyRecommended:
		return 1
	default:
		return 2
	}
}

// Label returns the human heading of the priority bucket
func (p Priority) Label() string {
	switch p {
	case PriorityMustDo:
		return "Must Do"
	case PriorityHighlyRecommended:
		return "Highly Recommended"
	default:
		return "Optional"
	}
}

// ParsePriority maps the labels an oracle may answer with onto a Priority
func ParsePriority(s string) (Priority, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", " ", "_", " ").Replace(key)
	key = strings.Join(strings.Fields(key), " ")
	switch key {
	case "must do", "mustdo", "must", "required":
		return PriorityMustDo, true
	case "highly recommended", "highlyrecommended", "recommended":
		return PriorityHighlyRecommended, true
	case "optional", "nice to know", "fyi":
		return PriorityOptional, true
	}
	return "", false
}

// ActionItem is something a parent has to do, attached to an Event.
// EventRef is a weak reference to the parent event (its MatchKey), not ownership.
type ActionItem struct {
	Description string     `json:"description"`
	Link        string     `json:"link,omitempty"`
	Due         *time.Time `json:"due,omitempty"`
	EventRef    string     `json:"event_ref,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
}

// PriorityValue returns the assigned priority, or "" when the item is unclassified
func (a *ActionItem) PriorityValue() Priority {
	if a.Priority == nil {
		return ""
	}
	return *a.Priority
}

// LinkTo sets the weak reference of every item to the given event
func LinkTo(items []*ActionItem, e *Event) {
	ref := e.Key().String()
	for _, item := range items {
		item.EventRef = ref
	}
}
