package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputePositionID computes a deterministic position id using SHA256.
// Formula: SHA256(token_address|entry_time_ms)
// Returns hex-encoded hash (64 characters).
func ComputePositionID(tokenAddress string, entryTimeMs int64) string {
	data := fmt.Sprintf("%s|%d", tokenAddress, entryTimeMs)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeOutcomeID computes a deterministic outcome id using SHA256.
// Formula: SHA256(position_id|exit_time_ms)
// Returns hex-encoded hash (64 characters).
func ComputeOutcomeID(positionID string, exitTimeMs int64) string {
	data := fmt.Sprintf("%s|%d", positionID, exitTimeMs)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
