package asr_test

import (
	"testing"

	"vibe-transcriber-service/internal/apperr"
	"vibe-transcriber-service/internal/service/asr"
	"vibe-transcriber-service/internal/service/asr/mock"
	"vibe-transcriber-service/internal/service/asr/openai"
)

func newRegistry(t *testing.T) *asr.Registry {
	t.Helper()
	r, err := asr.NewRegistry("mock",
		mock.New("mock-v1"),
		mock.New("mock-v2"),
		openai.New(openai.Config{APIKey: "k", Model: "whisper-large-v3"}, nil),
		openai.New(openai.Config{APIKey: "k", Model: "whisper-large-v3-turbo"}, nil),
	)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return r
}

func TestRegistry_Select(t *testing.T) {
	r := newRegistry(t)

	tests := []struct {
		name, provider, model string
		wantName, wantModel   string
		wantErr               bool
	}{
		{"default", "", "", "mock", "mock-v1", false},
		{"provider default model", "groq", "", "groq", "whisper-large-v3", false},
		{"explicit model", "groq", "whisper-large-v3-turbo", "groq", "whisper-large-v3-turbo", false},
		{"default provider explicit model", "", "mock-v2", "mock", "mock-v2", false},
		{"unknown provider", "azure", "", "", "", true},
		{"unknown model", "groq", "whisper-tiny", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := r.Select(tt.provider, tt.model)
			if tt.wantErr {
				if !apperr.Is(err, apperr.KindConfiguration) {
					t.Fatalf("expected configuration error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Name() != tt.wantName || p.Model() != tt.wantModel {
				t.Errorf("expected %s/%s, got %s", tt.wantName, tt.wantModel, asr.String(p))
			}
		})
	}
}

func TestNewRegistry_Validation(t *testing.T) {
	if _, err := asr.NewRegistry("google", mock.New("m")); !apperr.Is(err, apperr.KindConfiguration) {
		t.Errorf("expected error for unregistered default, got %v", err)
	}
	if _, err := asr.NewRegistry("mock", mock.New("m"), mock.New("m")); err == nil {
		t.Error("expected error for duplicate provider/model")
	}
}

func TestRegistry_Names(t *testing.T) {
	names := newRegistry(t).Names()
	if len(names) != 2 || names[0] != "groq" || names[1] != "mock" {
		t.Errorf("unexpected names %v", names)
	}
}
