// Package openai provides an ASR provider for OpenAI-compatible
// /audio/transcriptions endpoints such as Groq's Whisper deployment.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"vibe-transcriber-service/internal/observability/logging"
	"vibe-transcriber-service/internal/observability/metrics"
	"vibe-transcriber-service/internal/service/asr"
)

const (
	// DefaultGroqEndpoint is the Groq OpenAI-compatible API base.
	DefaultGroqEndpoint = "https://api.groq.com/openai/v1"

	// noSpeechThreshold is the per-segment no_speech_prob above which a
	// segment counts as silence.
	noSpeechThreshold = 0.6
)

// Config configures the client.
type Config struct {
	Name     string // provider name reported in results, e.g. "groq"
	Endpoint string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
	// MaxElapsed bounds the retry loop for 429/5xx responses.
	MaxElapsed time.Duration
}

// Client implements asr.Provider over HTTP.
type Client struct {
	cfg     Config
	http    *http.Client
	metrics *metrics.Metrics
}

// New creates a client. Zero values fall back to Groq defaults.
func New(cfg Config, m *metrics.Metrics) *Client {
	if cfg.Name == "" {
		cfg.Name = "groq"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultGroqEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-large-v3"
	}
	if cfg.Language == "" {
		cfg.Language = "ja"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxElapsed == 0 {
		cfg.MaxElapsed = 30 * time.Second
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		metrics: m,
	}
}

// Name returns the provider name.
func (c *Client) Name() string { return c.cfg.Name }

// Model returns the model name.
func (c *Client) Model() string { return c.cfg.Model }

type segment struct {
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	AvgLogprob   float64 `json:"avg_logprob"`
	NoSpeechProb float64 `json:"no_speech_prob"`
}

type verboseResponse struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Segments []segment `json:"segments"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Transcribe uploads audio as multipart form data.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string, opts asr.Options) (*asr.Result, error) {
	log := logging.WithComponent("asr.openai")
	start := time.Now()

	body, contentType, err := c.encodeForm(audio, filename, opts)
	if err != nil {
		return nil, err
	}

	var (
		out     verboseResponse
		lastErr error
	)
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			strings.TrimRight(c.cfg.Endpoint, "/")+"/audio/transcriptions", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			lastErr = fmt.Errorf("%s: read response: %w", c.cfg.Name, err)
			return lastErr
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("%s: %w: %s", c.cfg.Name, asr.ErrQuotaExhausted, errorMessage(raw))
			log.Warn().Int("status", resp.StatusCode).Msg("Rate limited, retrying")
			return lastErr
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%s: server error %d: %s", c.cfg.Name, resp.StatusCode, errorMessage(raw))
			return lastErr
		case resp.StatusCode >= 400:
			lastErr = fmt.Errorf("%s: request rejected %d: %s", c.cfg.Name, resp.StatusCode, errorMessage(raw))
			return backoff.Permanent(lastErr)
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			lastErr = fmt.Errorf("%s: decode response: %w", c.cfg.Name, err)
			return backoff.Permanent(lastErr)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = c.cfg.MaxElapsed
	err = backoff.Retry(op, backoff.WithContext(bo, ctx))
	elapsed := time.Since(start)
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		if errors.Is(lastErr, asr.ErrQuotaExhausted) {
			c.metrics.RecordASRError(c.cfg.Name, "quota")
		}
		return nil, lastErr
	}

	return c.buildResult(out, opts, elapsed), nil
}

func (c *Client) encodeForm(audio []byte, filename string, opts asr.Options) ([]byte, string, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(audio); err != nil {
		return nil, "", err
	}
	fields := [][2]string{
		{"model", c.cfg.Model},
		{"language", c.cfg.Language},
		{"response_format", "verbose_json"},
	}
	if opts.HighAccuracy {
		fields = append(fields, [2]string{"temperature", "0"})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return b.Bytes(), w.FormDataContentType(), nil
}

func (c *Client) buildResult(out verboseResponse, opts asr.Options, elapsed time.Duration) *asr.Result {
	text := strings.TrimSpace(out.Text)
	res := &asr.Result{
		Text:           text,
		ProcessingTime: elapsed,
	}

	silent := len(out.Segments) > 0
	var logprob float64
	for _, s := range out.Segments {
		if s.NoSpeechProb < noSpeechThreshold {
			silent = false
		}
		logprob += s.AvgLogprob
	}
	res.NoSpeechDetected = text == "" && silent
	if n := len(out.Segments); n > 0 {
		res.Confidence = math.Min(1, math.Exp(logprob/float64(n)))
	}
	if opts.Detailed {
		res.Stats = &asr.Stats{
			DurationSeconds: out.Duration,
			Segments:        len(out.Segments),
			Language:        out.Language,
		}
	}
	return res
}

func errorMessage(raw []byte) string {
	var e apiError
	if err := json.Unmarshal(raw, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	if len(raw) > 200 {
		raw = raw[:200]
	}
	return string(raw)
}
