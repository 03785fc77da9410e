// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldCorrelationID = "correlation_id"
	FieldRequestID     = "request_id"
	FieldPlayerID      = "player_id"
	FieldPlayerName    = "player_name"
	FieldTransportID   = "transport_id"
	FieldRoomID        = "room_id"

	// Task fields
	FieldTask     = "task"
	FieldCategory = "category"
	FieldOutcome  = "outcome"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
)
