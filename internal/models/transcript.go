// Package models defines the data structures shared across the transcription
// pipeline: work items, transcript records, batch results and terminal events.
package models

import (
	"fmt"
	"strings"
	"time"
)

// NoSpeechSentinel is stored as the transcript when the ASR result is empty.
// It is never an empty string so downstream readers can tell "no speech" from
// "not yet transcribed".
const NoSpeechSentinel = "発話なし"

// TimestampLayout is the canonical, lexically sortable UTC form used for
// recorded_at keys in the datastore.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses a recorded_at value. Values without a zone are UTC.
func ParseTimestamp(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", v)
}

// FormatTimestamp renders t in the canonical key form.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// RecordKey identifies a transcript record.
type RecordKey struct {
	DeviceID   string
	RecordedAt time.Time
}

// String renders the key for logs.
func (k RecordKey) String() string {
	return k.DeviceID + "/" + FormatTimestamp(k.RecordedAt)
}

// WorkItem is one audio reference plus its resolved identity.
type WorkItem struct {
	FileRef    string
	DeviceID   string
	RecordedAt time.Time
	LocalDate  *string
	LocalTime  *string
	TimeBlock  string
}

// Key returns the persistence identity of the item.
func (w WorkItem) Key() RecordKey {
	return RecordKey{DeviceID: w.DeviceID, RecordedAt: w.RecordedAt}
}

// TranscriptRecord is the persisted transcript row.
type TranscriptRecord struct {
	DeviceID       string
	RecordedAt     time.Time
	LocalDate      *string
	LocalTime      *string
	TranscriptText *string
	StatusFields   map[FeatureType]ProcessingStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Key returns the record identity.
func (r TranscriptRecord) Key() RecordKey {
	return RecordKey{DeviceID: r.DeviceID, RecordedAt: r.RecordedAt}
}

// Text returns the transcript or "" when unset.
func (r TranscriptRecord) Text() string {
	if r.TranscriptText == nil {
		return ""
	}
	return *r.TranscriptText
}

// CatalogEntry is one row of the metadata catalog.
type CatalogEntry struct {
	FileRef    string
	DeviceID   string
	RecordedAt time.Time
	LocalDate  *string
	LocalTime  *string
	TimeBlock  string
}

// WorkItem converts the catalog row into a work item.
func (c CatalogEntry) WorkItem() WorkItem {
	return WorkItem{
		FileRef:    c.FileRef,
		DeviceID:   c.DeviceID,
		RecordedAt: c.RecordedAt,
		LocalDate:  c.LocalDate,
		LocalTime:  c.LocalTime,
		TimeBlock:  c.TimeBlock,
	}
}
