package schema

import (
	"testing"

	"vibe-transcriber-service/internal/apperr"
	"vibe-transcriber-service/internal/models"
)

func TestBatch(t *testing.T) {
	tests := []struct {
		name     string
		body     BatchBody
		wantMode models.BatchMode
		wantErr  bool
	}{
		{"explicit", BatchBody{FilePaths: []string{"a.wav"}}, models.BatchModeExplicit, false},
		{"by device", BatchBody{DeviceID: "d1", LocalDate: "2024-01-01", TimeBlocks: []string{"09-00", "09-30"}}, models.BatchModeByDevice, false},
		{"both prefers device", BatchBody{FilePaths: []string{"a.wav"}, DeviceID: "d1", LocalDate: "2024-01-01"}, models.BatchModeByDevice, false},
		{"device without date falls back to files", BatchBody{FilePaths: []string{"a.wav"}, DeviceID: "d1"}, models.BatchModeExplicit, false},
		{"empty", BatchBody{}, models.BatchModeNone, true},
		{"device only", BatchBody{DeviceID: "d1"}, models.BatchModeNone, true},
		{"bad date", BatchBody{DeviceID: "d1", LocalDate: "01/01/2024"}, models.BatchModeNone, true},
		{"bad block", BatchBody{DeviceID: "d1", LocalDate: "2024-01-01", TimeBlocks: []string{"9:00"}}, models.BatchModeNone, true},
		{"block out of range", BatchBody{DeviceID: "d1", LocalDate: "2024-01-01", TimeBlocks: []string{"24-00"}}, models.BatchModeNone, true},
	}

	v := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := v.Batch(tt.body)
			if tt.wantErr {
				if !apperr.Is(err, apperr.KindInvalidRequest) {
					t.Fatalf("expected invalid request, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.Mode() != tt.wantMode {
				t.Errorf("expected mode %v, got %v", tt.wantMode, req.Mode())
			}
		})
	}
}

func TestBatch_CarriesProviderOverride(t *testing.T) {
	req, err := New().Batch(BatchBody{FilePaths: []string{"a.wav"}, Provider: " groq ", Model: "whisper-large-v3"})
	if err != nil {
		t.Fatal(err)
	}
	if req.Provider != "groq" || req.Model != "whisper-large-v3" {
		t.Errorf("unexpected override %q/%q", req.Provider, req.Model)
	}
}

func TestAsync(t *testing.T) {
	v := New()

	req, err := v.Async(AsyncBody{FilePath: "x.wav", DeviceID: "d2", RecordedAt: "2024-01-01T00:00:00Z"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.RecordedAtRaw != "2024-01-01T00:00:00Z" || req.RecordedAt.Year() != 2024 {
		t.Errorf("unexpected request %+v", req)
	}

	bad := []AsyncBody{
		{DeviceID: "d2", RecordedAt: "2024-01-01T00:00:00Z"},
		{FilePath: "x.wav", RecordedAt: "2024-01-01T00:00:00Z"},
		{FilePath: "x.wav", DeviceID: "d2"},
		{FilePath: "x.wav", DeviceID: "d2", RecordedAt: "yesterday"},
	}
	for _, b := range bad {
		if _, err := v.Async(b); !apperr.Is(err, apperr.KindInvalidRequest) {
			t.Errorf("%+v: expected invalid request, got %v", b, err)
		}
	}
}
