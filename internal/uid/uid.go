// Package uid provides unique identifier generation for Shoal.
package uid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New generates a 32-character hex string suitable for use as an internal
// identifier (temp file names, part directories) using crypto/rand.
func New() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// Fallback: timestamp-based ID. Should never happen with crypto/rand.
		return fmt.Sprintf("%032x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// NewUUID generates a UUIDv4 string, used for multipart upload IDs and XML
// error response RequestIds — both specified as fresh UUIDs on the wire.
func NewUUID() string {
	return uuid.NewString()
}
