package status

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"vibe-transcriber-service/internal/apperr"
	"vibe-transcriber-service/internal/models"
	"vibe-transcriber-service/internal/observability/metrics"
)

type testWriter struct {
	mu      sync.Mutex
	calls   []models.ProcessingStatus
	err     error
	panics  bool
	feature models.FeatureType
}

func (w *testWriter) SetStatus(ctx context.Context, key models.RecordKey, feature models.FeatureType, s models.ProcessingStatus) error {
	if w.panics {
		panic("driver exploded")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.feature = feature
	w.calls = append(w.calls, s)
	return w.err
}

var testKey = models.RecordKey{DeviceID: "d1", RecordedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

func TestTracker_Set(t *testing.T) {
	w := &testWriter{}
	tr := NewTracker(w, models.FeatureVibe, nil)

	if err := tr.Set(context.Background(), testKey, models.StatusProcessing); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.calls) != 1 || w.calls[0] != models.StatusProcessing || w.feature != models.FeatureVibe {
		t.Errorf("unexpected writes %v for %s", w.calls, w.feature)
	}
}

func TestTracker_SetClassifiesFailure(t *testing.T) {
	tr := NewTracker(&testWriter{err: errors.New("db down")}, models.FeatureVibe, nil)

	err := tr.Set(context.Background(), testKey, models.StatusFailed)
	if !apperr.Is(err, apperr.KindStatusUpdate) {
		t.Fatalf("expected status update error, got %v", err)
	}
}

func TestTracker_SetBestEffort(t *testing.T) {
	tests := []struct {
		name   string
		writer *testWriter
		want   bool
	}{
		{"success", &testWriter{}, true},
		{"writer error", &testWriter{err: errors.New("db down")}, false},
		{"writer panic", &testWriter{panics: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.NewMetricsWith(prometheus.NewRegistry())
			tr := NewTracker(tt.writer, models.FeatureVibe, m)

			if got := tr.SetBestEffort(context.Background(), testKey, models.StatusCompleted); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestLifecycle_HappyPath(t *testing.T) {
	l := NewLifecycle(testKey)
	if l.State() != models.StatusPending {
		t.Fatalf("expected pending, got %s", l.State())
	}
	if err := l.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := l.Finish(models.StatusCompleted); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if l.State() != models.StatusCompleted {
		t.Errorf("expected completed, got %s", l.State())
	}
}

func TestLifecycle_FinishOnlyOnce(t *testing.T) {
	l := NewLifecycle(testKey)
	_ = l.Start()

	if err := l.Finish(models.StatusFailed); err != nil {
		t.Fatalf("first finish: %v", err)
	}
	if err := l.Finish(models.StatusCompleted); !errors.Is(err, ErrAlreadyTerminal) {
		t.Errorf("expected ErrAlreadyTerminal, got %v", err)
	}
	if err := l.Start(); !errors.Is(err, ErrAlreadyTerminal) {
		t.Errorf("expected start after finish to fail, got %v", err)
	}
	if l.State() != models.StatusFailed {
		t.Errorf("expected first terminal state to stick, got %s", l.State())
	}
}

func TestLifecycle_FinishRejectsNonTerminal(t *testing.T) {
	l := NewLifecycle(testKey)
	if err := l.Finish(models.StatusProcessing); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestLifecycle_ConcurrentFinish(t *testing.T) {
	l := NewLifecycle(testKey)
	_ = l.Start()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			final := models.StatusCompleted
			if i%2 == 0 {
				final = models.StatusFailed
			}
			if l.Finish(final) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one successful finish, got %d", wins)
	}
}
