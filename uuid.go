package cppdbc

import (
	"crypto/rand"
	"fmt"
)

// newTransactionID generates a random (version 4) UUID to key the
// transaction manager's active-transaction table. This is one of the few
// places cppdbc reaches for the standard library over the teacher's own
// grand package: grand is seeded for query-builder placeholder generation,
// not a cryptographically secure source, and transaction identifiers must
// not be guessable by a caller racing another session's transaction.
func newTransactionID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(WrapError(CodeCreationFailed, "generating transaction id", err))
	}
	buf[6] = (buf[6] & 0x0f) | 0x40 // version 4
	buf[8] = (buf[8] & 0x3f) | 0x80 // variant 10xx
	return fmt.Sprintf("%x-%x-%x-%x-%x", buf[0:4], buf[4:6], buf[6:8], buf[8:10], buf[10:16])
}
