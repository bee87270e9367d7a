package mock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vibe-transcriber-service/internal/service/asr"
)

var _ asr.Provider = (*Adapter)(nil)

func TestAdapter_CyclesUtterances(t *testing.T) {
	a := New("")

	for i := 0; i < len(DefaultUtterances)+1; i++ {
		res, err := a.Transcribe(context.Background(), []byte{1}, "a.wav", asr.Options{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := DefaultUtterances[i%len(DefaultUtterances)].Text
		if res.Text != want {
			t.Errorf("call %d: expected %q, got %q", i, want, res.Text)
		}
	}
	if a.Model() != "mock-v1" {
		t.Errorf("expected default model, got %s", a.Model())
	}
}

func TestAdapter_EmptyAudioIsSilence(t *testing.T) {
	res, err := New("m").Transcribe(context.Background(), nil, "a.wav", asr.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "" || !res.NoSpeechDetected {
		t.Errorf("expected silence, got %+v", res)
	}
}

func TestAdapter_Error(t *testing.T) {
	boom := errors.New("boom")
	_, err := New("m", WithError(boom)).Transcribe(context.Background(), []byte{1}, "a.wav", asr.Options{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestAdapter_LatencyHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := New("m", WithLatency(time.Second)).Transcribe(ctx, []byte{1}, "a.wav", asr.Options{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestAdapter_ConcurrentCalls(t *testing.T) {
	a := New("m")
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.Transcribe(context.Background(), []byte{1}, "a.wav", asr.Options{Detailed: true}); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if a.next != 20 {
		t.Errorf("expected 20 calls, got %d", a.next)
	}
}
