package pkg

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

const (
	roomCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	roomCodeLength   = 5
)

// GenerateRoomCode returns a short shareable room code. The alphabet skips
// easily confused characters (I, L, O, 0, 1).
func GenerateRoomCode() string {
	code := make([]byte, roomCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(roomCodeAlphabet))))
		if err != nil {
			// crypto/rand only fails when the platform source is broken
			return uuid.NewString()[:roomCodeLength]
		}
		code[i] = roomCodeAlphabet[n.Int64()]
	}
	return string(code)
}

// GenerateSessionID returns a fresh client session identifier.
func GenerateSessionID() string {
	return uuid.NewString()
}
