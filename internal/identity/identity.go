// Package identity generates the node's 32-hex identity, the "Local UUID"
// of taco/settings.py. Persisting it is left to the caller (cmd/taco
// stores it in the settings document).
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// New returns a fresh 32-hex node identity (16 random bytes, hex encoded,
// no dashes — matching RE_UUID_CHECKER's bare-32-hex alternative).
func New() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generating node identity: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
