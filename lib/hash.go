package lib

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// ContentHash is the de-duplication key of a raw message.
func ContentHash(content []byte) string {
	sum := blake3.Sum256(content)
	return hex.EncodeToString(sum[:])
}
