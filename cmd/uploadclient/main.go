// uploadclient posts a local recording to the /analyze endpoint and prints
// the transcription.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"vibe-transcriber-service/internal/observability/logging"
)

type uploadOptions struct {
	server       string
	file         string
	provider     string
	model        string
	detailed     bool
	highAccuracy bool
}

func buildRequest(ctx context.Context, opts uploadOptions, audio io.Reader) (*http.Request, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(opts.file))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, fmt.Errorf("copy audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	q := url.Values{}
	if opts.detailed {
		q.Set("detailed", "true")
	}
	if opts.highAccuracy {
		q.Set("high_accuracy", "true")
	}
	if opts.provider != "" {
		q.Set("provider", opts.provider)
	}
	if opts.model != "" {
		q.Set("model", opts.model)
	}
	target := strings.TrimRight(opts.server, "/") + "/analyze"
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req, nil
}

func main() {
	opts := uploadOptions{}
	flag.StringVar(&opts.file, "file", "testdata/sample.wav", "Path to audio file (.wav, .mp3, .m4a)")
	flag.StringVar(&opts.server, "server", "http://localhost:8080", "HTTP server base URL")
	flag.StringVar(&opts.provider, "provider", "", "ASR provider override")
	flag.StringVar(&opts.model, "model", "", "ASR model override")
	flag.BoolVar(&opts.detailed, "detailed", false, "Request confidence and stats")
	flag.BoolVar(&opts.highAccuracy, "high-accuracy", true, "Request high accuracy mode")
	timeout := flag.Duration("timeout", 2*time.Minute, "Request timeout")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console", Service: "uploadclient"})

	f, err := os.Open(opts.file)
	if err != nil {
		log.Fatal().Err(err).Str("file", opts.file).Msg("Failed to open audio file")
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(opts.file), ".wav") {
		info, err := readWAVHeader(f)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid WAV file")
		}
		log.Info().
			Uint16("channels", info.Channels).
			Uint32("sampleRate", info.SampleRate).
			Uint16("bitsPerSample", info.BitsPerSample).
			Msg("WAV file")
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			log.Fatal().Err(err).Msg("Failed to rewind audio file")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	req, err := buildRequest(ctx, opts, f)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build request")
	}

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal().Err(err).Str("server", opts.server).Msg("Request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read response")
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatal().Int("status", resp.StatusCode).Str("body", string(raw)).Msg("Server rejected upload")
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		log.Fatal().Err(err).Msg("Invalid response body")
	}
	log.Info().
		Dur("elapsed", time.Since(start)).
		Interface("provider", out["asr_provider"]).
		Interface("noSpeech", out["no_speech_detected"]).
		Msg("Upload complete")

	pretty, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(pretty))
}
