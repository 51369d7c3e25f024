package script

import (
	"crypto/rand"
	"fmt"
	"time"
)

const (
	identAlphabet = "abcdefghijklmnopqrstuvwxyz"
	identLength   = 8
)

// randomIdent returns a short random lowercase identifier usable as a
// package name. It exists to avoid cross-call name collisions, not for
// cryptographic strength.
func randomIdent() string {
	buf := make([]byte, identLength)
	if _, err := rand.Read(buf); err != nil {
		// Entropy exhaustion is effectively unreachable; fall back to a
		// clock-derived name rather than failing the call.
		return fmt.Sprintf("s%07d", time.Now().UnixNano()%1e7)
	}
	out := make([]byte, identLength)
	for i, b := range buf {
		out[i] = identAlphabet[int(b)%len(identAlphabet)]
	}
	return string(out)
}

// randomTypeName returns a random exported identifier usable as a generated
// type name.
func randomTypeName() string {
	name := randomIdent()
	return string(name[0]-'a'+'A') + name[1:]
}
