// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ident

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonical(t *testing.T) {
	assert.Equal(t, "åsa", Canonical("ÅSA"))
	assert.Equal(t, Canonical("\u00e5sa"), Canonical("a\u030asa"))
	assert.Equal(t, "strasse", Canonical("Straße"))
	assert.Equal(t, "strasse", Canonical("  STRASSE "))
	assert.Empty(t, Canonical("   "))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, []string{"42", "gandalf", "Gandalf"}, Keys("42", "Gandalf"))
	assert.Equal(t, []string{"7", "bob"}, Keys("7", "bob"))
	assert.Equal(t, []string{"9"}, Keys("9", ""))
}
