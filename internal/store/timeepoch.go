package store

import "time"

// Epoch is a signed 64-bit microsecond-since-Unix-epoch timestamp (µepoch),
// the sole timestamp representation used by every table in this schema.
type Epoch int64

// Now returns the current time as a µepoch value.
func Now() Epoch {
	return FromTime(time.Now())
}

// FromTime converts a time.Time to µepoch.
func FromTime(t time.Time) Epoch {
	return Epoch(t.UnixMicro())
}

// Time converts a µepoch value back to a time.Time (UTC).
func (e Epoch) Time() time.Time {
	return time.UnixMicro(int64(e)).UTC()
}

// Add returns e shifted by d.
func (e Epoch) Add(d time.Duration) Epoch {
	return e + Epoch(d.Microseconds())
}

// Before reports whether e is strictly before other.
func (e Epoch) Before(other Epoch) bool {
	return e < other
}

// legacyTimestampLayouts are the textual formats the pre-µepoch schema may
// have stored timestamps in; parseLegacyTimestamp tries each in turn.
var legacyTimestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999",
}

// parseLegacyTimestamp parses a textual timestamp written by a pre-µepoch
// schema version into an Epoch, trying each tolerated layout in turn.
func parseLegacyTimestamp(s string) (Epoch, bool) {
	for _, layout := range legacyTimestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return FromTime(t), true
		}
	}
	return 0, false
}
