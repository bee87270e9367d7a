package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"vibe-transcriber-service/internal/app"
	"vibe-transcriber-service/internal/schema"
	"vibe-transcriber-service/internal/service/asr"
)

const (
	maxJSONBytes   = 1 << 20
	maxUploadBytes = 25 << 20
)

var allowedExtensions = []string{".wav", ".mp3", ".m4a"}

type handlers struct {
	app *app.Application
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// fetchAndTranscribe runs a synchronous batch.
func (h *handlers) fetchAndTranscribe(w http.ResponseWriter, r *http.Request) {
	var body schema.BatchBody
	if err := decodeJSON(r, &body); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := h.app.Validator.Batch(body)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.app.Batch.Run(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// asyncProcess accepts one item for background processing.
func (h *handlers) asyncProcess(w http.ResponseWriter, r *http.Request) {
	var body schema.AsyncBody
	if err := decodeJSON(r, &body); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := h.app.Validator.Async(body)
	if err != nil {
		writeError(w, err)
		return
	}

	ack, err := h.app.Async.Accept(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ack)
}

type analyzeResponse struct {
	Transcription    string     `json:"transcription"`
	ProcessingTime   float64    `json:"processing_time"`
	Confidence       *float64   `json:"confidence,omitempty"`
	NoSpeechDetected bool       `json:"no_speech_detected"`
	Stats            *asr.Stats `json:"stats,omitempty"`
	ASRProvider      string     `json:"asr_provider"`
	ASRModel         string     `json:"asr_model"`
}

// analyze transcribes an uploaded file directly without persisting it.
func (h *handlers) analyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+maxJSONBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, http.StatusBadRequest, "file exceeds the 25MB limit")
			return
		}
		writeDetail(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeDetail(w, http.StatusBadRequest, "file name is required")
		return
	}
	if !allowedExtension(header.Filename) {
		writeDetail(w, http.StatusBadRequest,
			"unsupported file type, allowed: "+strings.Join(allowedExtensions, ", "))
		return
	}
	if header.Size > maxUploadBytes {
		writeDetail(w, http.StatusBadRequest, "file exceeds the 25MB limit")
		return
	}

	q := r.URL.Query()
	opts := asr.Options{
		Detailed:     queryBool(q.Get("detailed")),
		HighAccuracy: queryBool(q.Get("high_accuracy")),
	}
	provider, err := h.app.Registry.Select(q.Get("provider"), q.Get("model"))
	if err != nil {
		writeError(w, err)
		return
	}

	audio, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	start := time.Now()
	result, err := provider.Transcribe(r.Context(), audio, header.Filename, opts)
	h.app.Metrics.RecordASR(provider.Name(), provider.Model(), err, time.Since(start).Seconds())
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "transcription failed: "+err.Error())
		return
	}

	resp := analyzeResponse{
		Transcription:    result.Text,
		ProcessingTime:   result.ProcessingTime.Seconds(),
		NoSpeechDetected: result.NoSpeechDetected,
		ASRProvider:      provider.Name(),
		ASRModel:         provider.Model(),
	}
	if opts.Detailed {
		confidence := result.Confidence
		resp.Confidence = &confidence
		resp.Stats = result.Stats
	}
	writeJSON(w, http.StatusOK, resp)
}

func allowedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, a := range allowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

func queryBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
