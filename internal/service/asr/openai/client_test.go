package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"vibe-transcriber-service/internal/observability/metrics"
	"vibe-transcriber-service/internal/service/asr"
)

func newTestClient(url string) *Client {
	return New(Config{
		Endpoint:   url,
		APIKey:     "test-key",
		Model:      "whisper-large-v3",
		MaxElapsed: 2 * time.Second,
	}, nil)
}

func TestTranscribe_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.FormValue("model") != "whisper-large-v3" || r.FormValue("response_format") != "verbose_json" {
			t.Errorf("unexpected form %v", r.MultipartForm.Value)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		data, _ := io.ReadAll(f)
		if hdr.Filename != "audio.wav" || string(data) != "RIFF" {
			t.Errorf("unexpected upload %s %q", hdr.Filename, data)
		}
		w.Write([]byte(`{"text":" こんにちは ","language":"japanese","duration":3.5,
			"segments":[{"start":0,"end":3.5,"avg_logprob":-0.1,"no_speech_prob":0.01}]}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Transcribe(context.Background(), []byte("RIFF"), "audio.wav", asr.Options{Detailed: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "こんにちは" {
		t.Errorf("expected trimmed text, got %q", res.Text)
	}
	if res.NoSpeechDetected {
		t.Error("expected speech")
	}
	if res.Stats == nil || res.Stats.DurationSeconds != 3.5 || res.Stats.Segments != 1 {
		t.Errorf("unexpected stats %+v", res.Stats)
	}
	if res.Confidence <= 0.8 || res.Confidence > 1 {
		t.Errorf("unexpected confidence %v", res.Confidence)
	}
}

func TestTranscribe_NoSpeech(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		noSpeech bool
	}{
		{"silent segments", `{"text":"","segments":[{"no_speech_prob":0.95},{"no_speech_prob":0.8}]}`, true},
		{"one voiced segment", `{"text":"","segments":[{"no_speech_prob":0.95},{"no_speech_prob":0.1}]}`, false},
		{"no segments", `{"text":""}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			res, err := newTestClient(srv.URL).Transcribe(context.Background(), []byte{1}, "a.wav", asr.Options{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.NoSpeechDetected != tt.noSpeech {
				t.Errorf("expected NoSpeechDetected=%v, got %v", tt.noSpeech, res.NoSpeechDetected)
			}
		})
	}
}

func TestTranscribe_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Transcribe(context.Background(), []byte{1}, "a.wav", asr.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "ok" || atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected success on second call, got %q after %d calls", res.Text, calls)
	}
}

func TestTranscribe_ClientErrorIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"file too large","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Transcribe(context.Background(), []byte{1}, "a.wav", asr.Options{})
	if err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected no retry on 4xx, got %d calls", calls)
	}
}

func TestTranscribe_RateLimitSurfacesQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit"}}`))
	}))
	defer srv.Close()

	m := metrics.NewMetricsWith(prometheus.NewRegistry())
	c := New(Config{Endpoint: srv.URL, APIKey: "k", MaxElapsed: 300 * time.Millisecond}, m)
	_, err := c.Transcribe(context.Background(), []byte{1}, "a.wav", asr.Options{})
	if !errors.Is(err, asr.ErrQuotaExhausted) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if got := testutil.ToFloat64(m.ASRErrors.WithLabelValues("groq", "quota")); got != 1 {
		t.Errorf("expected one quota error, got %v", got)
	}
	if got := testutil.ToFloat64(m.ASRErrors.WithLabelValues("groq", "transcribe")); got != 0 {
		t.Errorf("expected transcribe errors to be left to the caller, got %v", got)
	}
}

func TestTranscribe_TruncatedBodyIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"text":`))
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, APIKey: "k", MaxElapsed: 300 * time.Millisecond}, nil)
	_, err := c.Transcribe(context.Background(), []byte{1}, "a.wav", asr.Options{})
	if err == nil || !strings.Contains(err.Error(), "read response") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	c := New(Config{APIKey: "k"}, nil)
	if c.Name() != "groq" || c.Model() != "whisper-large-v3" || c.cfg.Endpoint != DefaultGroqEndpoint {
		t.Errorf("unexpected defaults %+v", c.cfg)
	}
}
