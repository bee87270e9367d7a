package models

import "fmt"

// ProcessingStatus is the per (record key, feature type) processing state.
// Values are stored verbatim in the datastore.
//
// State transitions:
//
//	pending → processing → completed
//	              │
//	              └──────→ failed
//
// A terminal record may be re-processed, which moves it back to processing.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// String returns the stored representation of the status.
func (s ProcessingStatus) String() string {
	return string(s)
}

// Valid reports whether s is one of the known statuses.
func (s ProcessingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for completed and failed.
func (s ProcessingStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Setting the same status again is always allowed.
func (s ProcessingStatus) CanTransitionTo(next ProcessingStatus) bool {
	if !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	switch s {
	case "", StatusPending:
		return next == StatusProcessing || next.IsTerminal()
	case StatusProcessing:
		return next.IsTerminal()
	case StatusCompleted, StatusFailed:
		return next == StatusProcessing
	default:
		return false
	}
}

// ParseProcessingStatus converts a stored value back into a status.
func ParseProcessingStatus(v string) (ProcessingStatus, error) {
	s := ProcessingStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown processing status %q", v)
	}
	return s, nil
}

// FeatureType is a processing domain under which status is tracked
// independently. The set is closed: each feature maps to a fixed column.
type FeatureType string

const (
	FeatureVibe     FeatureType = "vibe"
	FeatureBehavior FeatureType = "behavior"
	FeatureEmotion  FeatureType = "emotion"
)

// FeatureTypes lists every known feature type.
var FeatureTypes = []FeatureType{FeatureVibe, FeatureBehavior, FeatureEmotion}

// Valid reports whether f is a known feature type.
func (f FeatureType) Valid() bool {
	for _, known := range FeatureTypes {
		if f == known {
			return true
		}
	}
	return false
}

// StatusColumn returns the datastore column holding this feature's status.
func (f FeatureType) StatusColumn() string {
	return string(f) + "_status"
}
