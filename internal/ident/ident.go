// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ident derives the keys a player can be addressed by.
package ident

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Canonical folds a display name into its case- and normalization-insensitive
// form: "ÅSA", "åsa" and "åsa" all map to the same key.
func Canonical(name string) string {
	s := strings.TrimSpace(name)
	if s == "" {
		return ""
	}
	return norm.NFC.String(folder.String(norm.NFKC.String(s)))
}

// Keys returns the distinct non-empty identity keys for a player, primary id first.
func Keys(id, displayName string) []string {
	out := make([]string, 0, 3)
	seen := make(map[string]struct{}, 3)
	for _, k := range []string{id, Canonical(displayName), strings.TrimSpace(displayName)} {
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
