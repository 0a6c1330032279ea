package booking

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
)

// NewToken returns a 32-character random hex string. Reschedule and cancel
// tokens are bearer capabilities: possession is authorization, so they must
// be unguessable.
func NewToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// TokenMatches compares a stored token against a presented one in constant
// time. Empty stored tokens never match.
func TokenMatches(stored, presented string) bool {
	if stored == "" || len(stored) != len(presented) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
