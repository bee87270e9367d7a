// Package mock provides a mock ASR provider for running without cloud
// credentials. It cycles through canned utterances; an empty audio payload
// is reported as silence.
package mock

import (
	"context"
	"sync"
	"time"

	"vibe-transcriber-service/internal/service/asr"
)

const providerName = "mock"

// SimulatedUtterance is one canned transcription.
type SimulatedUtterance struct {
	Text       string
	Confidence float64
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{Text: "おはようございます。今日はいい天気ですね。", Confidence: 0.94},
	{Text: "ちょっと待って、すぐ行くから。", Confidence: 0.91},
	{Text: "お昼ご飯は何にしようかな。", Confidence: 0.89},
	{Text: "ありがとう、助かりました。", Confidence: 0.97},
}

// Adapter implements asr.Provider with canned responses.
type Adapter struct {
	model string

	mu      sync.Mutex
	next    int
	latency time.Duration
	err     error
}

// Option configures the mock.
type Option func(*Adapter)

// WithLatency delays every call by d, honoring context cancellation.
func WithLatency(d time.Duration) Option {
	return func(a *Adapter) { a.latency = d }
}

// WithError makes every call fail with err.
func WithError(err error) Option {
	return func(a *Adapter) { a.err = err }
}

// New creates a mock provider registered under model.
func New(model string, opts ...Option) *Adapter {
	if model == "" {
		model = "mock-v1"
	}
	a := &Adapter{model: model}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Name returns the provider name.
func (a *Adapter) Name() string { return providerName }

// Model returns the configured model name.
func (a *Adapter) Model() string { return a.model }

// Transcribe returns the next canned utterance.
func (a *Adapter) Transcribe(ctx context.Context, audio []byte, filename string, opts asr.Options) (*asr.Result, error) {
	start := time.Now()
	if a.latency > 0 {
		select {
		case <-time.After(a.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.err != nil {
		return nil, a.err
	}

	if len(audio) == 0 {
		return &asr.Result{NoSpeechDetected: true, ProcessingTime: time.Since(start)}, nil
	}

	a.mu.Lock()
	utt := DefaultUtterances[a.next%len(DefaultUtterances)]
	a.next++
	a.mu.Unlock()

	res := &asr.Result{
		Text:           utt.Text,
		Confidence:     utt.Confidence,
		ProcessingTime: time.Since(start),
	}
	if opts.Detailed {
		res.Stats = &asr.Stats{Segments: 1, Language: "ja"}
	}
	return res, nil
}
