// Package identity generates entity identifiers and the ISO-8601 timestamps
// used throughout the sync layer.
package identity

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timeLayout renders UTC ISO-8601 with millisecond precision, matching the
// timestamps already stored by existing installs.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

const suffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewItemID returns a time-based id with a 9 character base-36 random
// suffix. Collision-resistant but not cryptographically unique, which is
// acceptable at single-household scale.
func NewItemID() string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(time.Now().UnixMilli(), 10))
	for i := 0; i < 9; i++ {
		b.WriteByte(suffixAlphabet[rand.IntN(len(suffixAlphabet))])
	}
	return b.String()
}

// NewLocationID returns a UUID v4. Location ids double as QR payloads, so
// they need a stable, scanner-friendly format.
func NewLocationID() string {
	return uuid.NewString()
}

// NewDeviceID returns a random device identifier, generated once per device
// and persisted by the caller. A persisted random id avoids the collisions
// that identical device models would produce if identity were derived from
// device metadata.
func NewDeviceID() string {
	return uuid.NewString()
}

// Now returns the current UTC time as an ISO-8601 string.
func Now() string {
	return time.Now().UTC().Format(timeLayout)
}

// Format renders t as an ISO-8601 string.
func Format(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Parse converts an ISO-8601 timestamp back to a time.Time. The zero time
// and false are returned for empty or malformed input.
func Parse(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Before reports whether timestamp a is strictly older than b. Unparseable
// timestamps are never considered older, so malformed input falls through
// to last-writer-wins.
func Before(a, b string) bool {
	ta, okA := Parse(a)
	tb, okB := Parse(b)
	if !okA || !okB {
		return false
	}
	return ta.Before(tb)
}
