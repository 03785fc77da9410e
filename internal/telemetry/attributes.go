// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by every span mudcore emits.
const (
	PlayerIDKey        = "player.id"
	PlayerNameKey      = "player.name"
	RoomIDKey          = "room.id"
	CascadeTriggerKey  = "cascade.trigger"
	CascadeGhostsKey   = "cascade.ghosts"
	CascadeRemovedKey  = "cascade.room_entries"
	CascadeReattachKey = "cascade.reattached"

	AuditManualKey     = "audit.manual"
	AuditOrphansKey    = "audit.orphans"
	AuditExceededKey   = "audit.exceeded"
	AuditCleanupRanKey = "audit.cleanup_ran"

	TaskNameKey     = "task.name"
	TaskCategoryKey = "task.category"

	ErrorTypeKey = "error.type"
)

// PlayerAttributes identifies the player a span acts on. Empty values are skipped.
func PlayerAttributes(playerID, name, roomID string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if playerID != "" {
		attrs = append(attrs, attribute.String(PlayerIDKey, playerID))
	}
	if name != "" {
		attrs = append(attrs, attribute.String(PlayerNameKey, name))
	}
	if roomID != "" {
		attrs = append(attrs, attribute.String(RoomIDKey, roomID))
	}
	return attrs
}

// CascadeAttributes summarizes a finished cleanup cascade.
func CascadeAttributes(trigger string, removed, ghosts int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(CascadeTriggerKey, trigger),
		attribute.Int(CascadeRemovedKey, removed),
		attribute.Int(CascadeGhostsKey, ghosts),
	}
}

// AuditAttributes summarizes an orphan audit cycle.
func AuditAttributes(manual bool, orphans int, exceeded, cleanupRan bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(AuditManualKey, manual),
		attribute.Int(AuditOrphansKey, orphans),
		attribute.Bool(AuditExceededKey, exceeded),
		attribute.Bool(AuditCleanupRanKey, cleanupRan),
	}
}

// TaskAttributes identifies a tracked unit.
func TaskAttributes(name, category string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(TaskNameKey, name),
		attribute.String(TaskCategoryKey, category),
	}
}
