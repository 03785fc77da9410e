// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package task

import "errors"

var (
	// ErrRegistrationDenied is returned by Register while ShutdownAll is running.
	ErrRegistrationDenied = errors.New("task registration denied: shutdown in progress")

	// ErrNilWork is returned when Register is called without a work function.
	ErrNilWork = errors.New("task work function is nil")
)
