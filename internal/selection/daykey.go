package selection

import (
	"fmt"
	"time"
)

// Zone returns a fixed-offset location such as UTC+8.
func Zone(offsetHours int) *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", offsetHours), offsetHours*3600)
}

// DayKey formats t as YYYY-MM-DD in a fixed UTC offset. Board usage counters are
// keyed by it, so a new day starts a fresh counter without any reset.
func DayKey(t time.Time, offsetHours int) string {
	return t.In(Zone(offsetHours)).Format("2006-01-02")
}
