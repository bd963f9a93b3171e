package model

import (
	"time"
)

// Kind discriminates the two notification families.
type Kind int16

const (
	// [ZERO_VALUE_GUARD] Start from 1 to distinguish from uninitialized data.
	KindIncident Kind = iota + 1
	KindWelfare
)

func (k Kind) String() string {
	switch k {
	case KindIncident:
		return "incident"
	case KindWelfare:
		return "welfare"
	default:
		return "unknown"
	}
}

// Priority mirrors the platform's priority_level vocabulary.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ParsePriority normalizes a priority_level value, defaulting to medium for
// anything outside the known vocabulary.
func ParsePriority(raw string) Priority {
	switch Priority(raw) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return Priority(raw)
	default:
		return PriorityMedium
	}
}

// NotificationItem is the aggregator's unit of display. An item may originate
// from a REST snapshot, from a push event, or be upgraded in place when both
// arrive for the same logical event (matched by ID).
type NotificationItem struct {
	// ID is stable across the REST and push representations:
	// "welfare_<relatedID>" for welfare events, the raw numeric id for
	// incidents.
	ID         string
	Kind       Kind
	Title      string
	Message    string
	Priority   Priority
	OccurredAt int64 // epoch millis; zero when the source carried no usable timestamp

	// Welfare-only display metadata.
	UserName string
	Status   string
}

// HighAttention reports whether the item counts toward the priority badge.
// Welfare reports are always treated as high-attention regardless of their
// nominal priority field (product policy, see DESIGN.md).
func (n *NotificationItem) HighAttention() bool {
	return n.Kind == KindWelfare || n.Priority == PriorityHigh || n.Priority == PriorityCritical
}

// MergeFrom upgrades the item in place: non-zero fields of other override.
// The ID and Kind never change on merge.
func (n *NotificationItem) MergeFrom(other NotificationItem) {
	if other.Title != "" {
		n.Title = other.Title
	}
	if other.Message != "" {
		n.Message = other.Message
	}
	if other.Priority != "" {
		n.Priority = other.Priority
	}
	if other.OccurredAt != 0 {
		n.OccurredAt = other.OccurredAt
	}
	if other.UserName != "" {
		n.UserName = other.UserName
	}
	if other.Status != "" {
		n.Status = other.Status
	}
}

// eventTimeLayouts covers the heterogeneous timestamp shapes produced by the
// unified and legacy endpoints. The fallback chain lives here and nowhere
// else.
var eventTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseEventTime returns the epoch millis of the first candidate that parses,
// or zero when none does.
func ParseEventTime(candidates ...string) int64 {
	for _, raw := range candidates {
		if raw == "" {
			continue
		}
		for _, layout := range eventTimeLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.UnixMilli()
			}
		}
	}
	return 0
}
