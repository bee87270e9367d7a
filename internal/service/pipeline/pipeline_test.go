package pipeline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"vibe-transcriber-service/internal/apperr"
	"vibe-transcriber-service/internal/models"
	"vibe-transcriber-service/internal/observability/metrics"
	"vibe-transcriber-service/internal/service/asr"
	"vibe-transcriber-service/internal/service/asr/openai"
	"vibe-transcriber-service/internal/storage"
	"vibe-transcriber-service/internal/store"
)

type testDownloader struct {
	objects map[string]string
	err     error
}

func (d *testDownloader) Download(ctx context.Context, key string, w io.Writer) (int64, error) {
	if d.err != nil {
		return 0, d.err
	}
	body, ok := d.objects[key]
	if !ok {
		return 0, storage.ErrNotFound
	}
	n, err := io.Copy(w, strings.NewReader(body))
	return n, err
}

type testProvider struct {
	result *asr.Result
	err    error
	panics bool
	opts   []asr.Options
	audio  [][]byte
}

func (p *testProvider) Name() string  { return "test" }
func (p *testProvider) Model() string { return "test-v1" }

func (p *testProvider) Transcribe(ctx context.Context, audio []byte, filename string, opts asr.Options) (*asr.Result, error) {
	if p.panics {
		panic("provider bug")
	}
	p.opts = append(p.opts, opts)
	p.audio = append(p.audio, audio)
	return p.result, p.err
}

type testCatalog struct {
	date, time *string
	err        error
	calls      int
}

func (c *testCatalog) LocalTimestamps(ctx context.Context, key models.RecordKey) (*string, *string, error) {
	c.calls++
	return c.date, c.time, c.err
}

type testPersister struct {
	mu   sync.Mutex
	recs []models.TranscriptRecord
	err  error
}

func (p *testPersister) Upsert(ctx context.Context, rec models.TranscriptRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.recs = append(p.recs, rec)
	return nil
}

type harness struct {
	p         *Pipeline
	down      *testDownloader
	catalog   *testCatalog
	persister *testPersister
	metrics   *metrics.Metrics
	dirs      []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		down:      &testDownloader{objects: map[string]string{"files/d1/a.wav": "RIFFdata"}},
		catalog:   &testCatalog{err: store.ErrNotFound},
		persister: &testPersister{},
		metrics:   metrics.NewMetricsWith(prometheus.NewRegistry()),
	}
	h.p = New(Config{
		Downloader: h.down,
		Catalog:    h.catalog,
		Persister:  h.persister,
		Advisory:   QuotaAdvisory{Location: time.FixedZone("JST", 9*3600), WindowEndHour: 9},
		ScratchDir: t.TempDir(),
		Metrics:    h.metrics,
	})
	mkdir := h.p.mkdirTemp
	h.p.mkdirTemp = func(dir, pattern string) (string, error) {
		d, err := mkdir(dir, pattern)
		if err == nil {
			h.dirs = append(h.dirs, d)
		}
		return d, err
	}
	return h
}

func (h *harness) assertScratchRemoved(t *testing.T) {
	t.Helper()
	if len(h.dirs) == 0 {
		t.Fatal("expected a scratch directory to be created")
	}
	for _, d := range h.dirs {
		if _, err := os.Stat(d); !os.IsNotExist(err) {
			t.Errorf("scratch directory %s still exists", d)
		}
	}
}

func testItem() models.WorkItem {
	return models.WorkItem{
		FileRef:    "files/d1/a.wav",
		DeviceID:   "d1",
		RecordedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestProcess_Success(t *testing.T) {
	h := newHarness(t)
	date, clock := "2024-01-01", "09:00:00"
	h.catalog.err = nil
	h.catalog.date, h.catalog.time = &date, &clock
	provider := &testProvider{result: &asr.Result{Text: "  こんにちは  "}}

	res := h.p.Process(context.Background(), OriginBatch, testItem(), provider)

	if !res.Success || res.Err != nil {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if res.Text != "こんにちは" || res.NoSpeech {
		t.Errorf("unexpected classification %q/%v", res.Text, res.NoSpeech)
	}
	if len(h.persister.recs) != 1 {
		t.Fatalf("expected one upsert, got %d", len(h.persister.recs))
	}
	rec := h.persister.recs[0]
	if rec.Text() != "こんにちは" || rec.LocalDate == nil || *rec.LocalDate != date || *rec.LocalTime != clock {
		t.Errorf("unexpected record %+v", rec)
	}
	if string(provider.audio[0]) != "RIFFdata" {
		t.Errorf("expected downloaded bytes to reach the provider")
	}
	if provider.opts[0] != (asr.Options{HighAccuracy: true}) {
		t.Errorf("unexpected options %+v", provider.opts[0])
	}
	h.assertScratchRemoved(t)
}

func TestProcess_ItemLocalTimestampsSkipCatalog(t *testing.T) {
	h := newHarness(t)
	date := "2024-01-01"
	item := testItem()
	item.LocalDate = &date

	res := h.p.Process(context.Background(), OriginBatch, item, &testProvider{result: &asr.Result{Text: "x"}})
	if !res.Success {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if h.catalog.calls != 0 {
		t.Errorf("expected no catalog lookup, got %d", h.catalog.calls)
	}
}

func TestProcess_CatalogMissTolerated(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not found", store.ErrNotFound},
		{"query error", errors.New("db gone")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.catalog.err = tt.err

			res := h.p.Process(context.Background(), OriginAsync, testItem(), &testProvider{result: &asr.Result{Text: "x"}})
			if !res.Success {
				t.Fatalf("expected success, got %v", res.Err)
			}
			rec := h.persister.recs[0]
			if rec.LocalDate != nil || rec.LocalTime != nil {
				t.Errorf("expected nil local timestamps, got %+v", rec)
			}
		})
	}
}

func TestProcess_Failures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(h *harness)
		provider *testProvider
		item     models.WorkItem
		wantKind apperr.Kind
	}{
		{
			name:     "object missing",
			provider: &testProvider{result: &asr.Result{Text: "x"}},
			item:     models.WorkItem{FileRef: "files/none.wav", DeviceID: "d1"},
			wantKind: apperr.KindStorage,
		},
		{
			name:     "access denied",
			setup:    func(h *harness) { h.down.err = storage.ErrAccessDenied },
			provider: &testProvider{result: &asr.Result{Text: "x"}},
			item:     testItem(),
			wantKind: apperr.KindStorage,
		},
		{
			name:     "asr error",
			provider: &testProvider{err: errors.New("upstream 503")},
			item:     testItem(),
			wantKind: apperr.KindCapability,
		},
		{
			name:     "persistence exhausted",
			setup:    func(h *harness) { h.persister.err = apperr.E(apperr.KindPersistence, "upsert", errors.New("gave up")) },
			provider: &testProvider{result: &asr.Result{Text: "x"}},
			item:     testItem(),
			wantKind: apperr.KindPersistence,
		},
		{
			name:     "provider panic",
			provider: &testProvider{panics: true},
			item:     testItem(),
			wantKind: apperr.KindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(h)
			}

			res := h.p.Process(context.Background(), OriginBatch, tt.item, tt.provider)

			if res.Success {
				t.Fatal("expected failure")
			}
			if got := apperr.KindOf(res.Err); got != tt.wantKind {
				t.Errorf("expected kind %s, got %s (%v)", tt.wantKind, got, res.Err)
			}
			h.assertScratchRemoved(t)
			if got := testutil.ToFloat64(h.metrics.ItemErrors.WithLabelValues(tt.wantKind.String())); got != 1 {
				t.Errorf("expected item error metric, got %v", got)
			}
		})
	}
}

func TestProcess_ScratchCreationFailure(t *testing.T) {
	h := newHarness(t)
	h.p.mkdirTemp = func(string, string) (string, error) { return "", errors.New("disk full") }

	res := h.p.Process(context.Background(), OriginBatch, testItem(), &testProvider{result: &asr.Result{Text: "x"}})
	if res.Success || !apperr.Is(res.Err, apperr.KindInternal) {
		t.Fatalf("expected internal error, got %v", res.Err)
	}
}

func TestProcess_NoSpeechSentinel(t *testing.T) {
	tests := []struct {
		name         string
		result       *asr.Result
		now          time.Time
		wantAdvisory float64
	}{
		{
			name:   "flagged silence inside window",
			result: &asr.Result{NoSpeechDetected: true},
			now:    time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC), // 05:00 JST
		},
		{
			name:         "empty result inside window",
			result:       &asr.Result{Text: "   "},
			now:          time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC), // 05:00 JST
			wantAdvisory: 1,
		},
		{
			name:   "empty result outside window",
			result: &asr.Result{},
			now:    time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC), // 12:00 JST
		},
		{
			name:   "nil result",
			result: nil,
			now:    time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.p.now = func() time.Time { return tt.now }

			res := h.p.Process(context.Background(), OriginBatch, testItem(), &testProvider{result: tt.result})

			if !res.Success {
				t.Fatalf("expected success, got %v", res.Err)
			}
			if !res.NoSpeech || res.Text != models.NoSpeechSentinel {
				t.Errorf("expected sentinel, got %q", res.Text)
			}
			if got := h.persister.recs[0].Text(); got != models.NoSpeechSentinel || got == "" {
				t.Errorf("expected sentinel to be stored, got %q", got)
			}
			if got := testutil.ToFloat64(h.metrics.QuotaSuspectedTotal.WithLabelValues("test")); got != tt.wantAdvisory {
				t.Errorf("expected advisory count %v, got %v", tt.wantAdvisory, got)
			}
		})
	}
}

func TestQuotaAdvisory_Check(t *testing.T) {
	jst := time.FixedZone("JST", 9*3600)
	a := QuotaAdvisory{Location: jst, WindowEndHour: 9}

	tests := []struct {
		local time.Time
		want  bool
	}{
		{time.Date(2024, 1, 1, 0, 0, 0, 0, jst), true},
		{time.Date(2024, 1, 1, 8, 59, 59, 0, jst), true},
		{time.Date(2024, 1, 1, 9, 0, 0, 0, jst), false},
		{time.Date(2024, 1, 1, 23, 59, 0, 0, jst), false},
	}
	for _, tt := range tests {
		if got := a.Check(tt.local.UTC()); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.local.Format("15:04"), tt.want, got)
		}
	}

	if (QuotaAdvisory{}).Check(time.Now()) {
		t.Error("expected zero advisory to never trigger")
	}
}

func TestProcess_UsesBaseNameInScratch(t *testing.T) {
	h := newHarness(t)
	var seen string
	h.p.removeAll = func(path string) error {
		entries, _ := os.ReadDir(path)
		if len(entries) == 1 {
			seen = entries[0].Name()
		}
		return os.RemoveAll(path)
	}

	h.p.Process(context.Background(), OriginBatch, testItem(), &testProvider{result: &asr.Result{Text: "x"}})
	if seen != filepath.Base(testItem().FileRef) {
		t.Errorf("expected scratch file a.wav, got %q", seen)
	}
}

func asrLatencySamples(t *testing.T, m *metrics.Metrics, provider, model string) uint64 {
	t.Helper()
	var out dto.Metric
	if err := m.ASRLatency.WithLabelValues(provider, model).(prometheus.Histogram).Write(&out); err != nil {
		t.Fatal(err)
	}
	return out.GetHistogram().GetSampleCount()
}

func TestProcess_RecordsEachASRCallOnce(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		success   bool
		asrErrors float64
	}{
		{"success", http.StatusOK, `{"text":"hello"}`, true, 0},
		{"rejected", http.StatusBadRequest, `{"error":{"message":"bad audio"}}`, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			h := newHarness(t)
			provider := openai.New(openai.Config{Endpoint: srv.URL, APIKey: "k"}, h.metrics)

			res := h.p.Process(context.Background(), OriginBatch, testItem(), provider)

			if res.Success != tt.success {
				t.Fatalf("expected success=%v, got %v", tt.success, res.Err)
			}
			if got := asrLatencySamples(t, h.metrics, "groq", "whisper-large-v3"); got != 1 {
				t.Errorf("expected one latency sample per ASR call, got %d", got)
			}
			if got := testutil.ToFloat64(h.metrics.ASRErrors.WithLabelValues("groq", "transcribe")); got != tt.asrErrors {
				t.Errorf("expected %v transcribe errors, got %v", tt.asrErrors, got)
			}
		})
	}
}
