package debal

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// electionHash is the hex SHA-256 of node id concatenated with the election time in nanoseconds.
// Every node can recompute it, which makes announcements verifiable.
func electionHash(id NodeID, timestamp time.Duration) string {
	var sum = sha256.Sum256([]byte(string(id) + strconv.FormatInt(int64(timestamp), 10)))
	return hex.EncodeToString(sum[:])
}
