package id

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// New returns a ULID. Notification ids sort by creation time, and the same
// generator names websocket connections.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
