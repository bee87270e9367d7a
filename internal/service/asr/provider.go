// Package asr defines the speech-recognition capability used by the pipeline
// and the registry selecting a provider/model pair per request.
package asr

import (
	"context"
	"errors"
	"time"
)

// Options tune a single transcription call.
type Options struct {
	// Detailed requests confidence and segment statistics.
	Detailed bool
	// HighAccuracy trades latency for accuracy where the provider supports it.
	HighAccuracy bool
}

// Stats carries optional detail returned when Options.Detailed is set.
type Stats struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Segments        int     `json:"segments"`
	Language        string  `json:"language,omitempty"`
}

// Result is a provider's transcription outcome.
type Result struct {
	Text string
	// NoSpeechDetected is set when the provider positively reports silence,
	// as opposed to an empty result for unknown reasons.
	NoSpeechDetected bool
	Confidence       float64
	ProcessingTime   time.Duration
	Stats            *Stats
}

// Provider transcribes one audio payload.
type Provider interface {
	Name() string
	Model() string
	Transcribe(ctx context.Context, audio []byte, filename string, opts Options) (*Result, error)
}

// ErrQuotaExhausted is wrapped by providers when the upstream reports a
// rate or quota limit.
var ErrQuotaExhausted = errors.New("asr: quota exhausted")
