// Package google provides a Google Cloud Speech-to-Text provider.
package google

import (
	"context"
	"fmt"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"vibe-transcriber-service/internal/observability/metrics"
	"vibe-transcriber-service/internal/service/asr"
)

const providerName = "google"

// Config holds Google Speech-to-Text configuration.
type Config struct {
	Model        string // latest_long, latest_short, ...
	LanguageCode string
	SampleRateHz int32 // 0 lets the service read it from the WAV header
	Encoding     string
}

// DefaultConfig returns the default recognition configuration.
func DefaultConfig() Config {
	return Config{
		Model:        "latest_long",
		LanguageCode: "ja-JP",
		Encoding:     "",
	}
}

// recognizer is the subset of *speech.Client used here.
type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
	Close() error
}

// Adapter implements asr.Provider using synchronous recognition.
type Adapter struct {
	client  recognizer
	config  Config
	metrics *metrics.Metrics
}

// New creates a Google provider.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config, m *metrics.Metrics) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return newWithClient(c, cfg, m), nil
}

func newWithClient(c recognizer, cfg Config, m *metrics.Metrics) *Adapter {
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = def.LanguageCode
	}
	return &Adapter{client: c, config: cfg, metrics: m}
}

// Name returns the provider name.
func (a *Adapter) Name() string { return providerName }

// Model returns the recognition model.
func (a *Adapter) Model() string { return a.config.Model }

// Transcribe sends the whole payload in one Recognize call.
func (a *Adapter) Transcribe(ctx context.Context, audio []byte, filename string, opts asr.Options) (*asr.Result, error) {
	start := time.Now()

	cfg := &speechpb.RecognitionConfig{
		Encoding:                   parseAudioEncoding(a.config.Encoding),
		SampleRateHertz:            a.config.SampleRateHz,
		LanguageCode:               a.config.LanguageCode,
		Model:                      a.config.Model,
		UseEnhanced:                opts.HighAccuracy,
		EnableAutomaticPunctuation: true,
		EnableWordConfidence:       opts.Detailed,
	}

	resp, err := a.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: cfg,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	elapsed := time.Since(start)
	if err != nil {
		if status.Code(err) == codes.ResourceExhausted {
			a.metrics.RecordASRError(providerName, "quota")
			return nil, fmt.Errorf("google recognize %s: %w: %v", filename, asr.ErrQuotaExhausted, err)
		}
		return nil, fmt.Errorf("google recognize %s: %w", filename, err)
	}

	return buildResult(resp, opts, elapsed), nil
}

func buildResult(resp *speechpb.RecognizeResponse, opts asr.Options, elapsed time.Duration) *asr.Result {
	var (
		parts      []string
		confidence float32
		counted    int
		lastEnd    time.Duration
		language   string
	)
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		alt := r.GetAlternatives()[0]
		if t := strings.TrimSpace(alt.GetTranscript()); t != "" {
			parts = append(parts, t)
		}
		confidence += alt.GetConfidence()
		counted++
		if end := r.GetResultEndTime(); end != nil {
			lastEnd = end.AsDuration()
		}
		if language == "" {
			language = r.GetLanguageCode()
		}
	}

	res := &asr.Result{
		Text:             strings.Join(parts, ""),
		NoSpeechDetected: len(resp.GetResults()) == 0,
		ProcessingTime:   elapsed,
	}
	if counted > 0 {
		res.Confidence = float64(confidence) / float64(counted)
	}
	if opts.Detailed {
		res.Stats = &asr.Stats{
			DurationSeconds: lastEnd.Seconds(),
			Segments:        counted,
			Language:        language,
		}
	}
	return res
}

// Close releases the underlying client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// parseAudioEncoding converts a config string to Google's AudioEncoding enum.
// Unknown values leave the encoding unspecified so WAV and FLAC headers are
// read by the service.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.ToUpper(encoding) {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "MP3":
		return speechpb.RecognitionConfig_MP3
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}
