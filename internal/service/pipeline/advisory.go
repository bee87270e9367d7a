package pipeline

import (
	"fmt"
	"time"
)

// QuotaAdvisory guesses that an empty ASR result without a no-speech flag
// was caused by an exhausted daily quota. It only ever produces a warning.
type QuotaAdvisory struct {
	// Location is the reference zone of the quota reset.
	Location *time.Location
	// WindowEndHour is the local hour at which the quota is assumed to reset.
	WindowEndHour int
}

// NewQuotaAdvisory loads the named zone.
func NewQuotaAdvisory(timezone string, windowEndHour int) (QuotaAdvisory, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return QuotaAdvisory{}, fmt.Errorf("advisory timezone: %w", err)
	}
	return QuotaAdvisory{Location: loc, WindowEndHour: windowEndHour}, nil
}

// Check reports whether now falls in [00:00, WindowEndHour:00) in the
// reference zone.
func (a QuotaAdvisory) Check(now time.Time) bool {
	if a.Location == nil {
		return false
	}
	return now.In(a.Location).Hour() < a.WindowEndHour
}

// RetryAfter renders the local reset time for log messages.
func (a QuotaAdvisory) RetryAfter() string {
	zone := "local"
	if a.Location != nil {
		zone = a.Location.String()
	}
	return fmt.Sprintf("%02d:00 %s", a.WindowEndHour, zone)
}
