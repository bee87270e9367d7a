package main

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"vibe-transcriber-service/internal/models"
)

// queuedReader returns its messages in order, then blocks until ctx ends.
type queuedReader struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (r *queuedReader) SetOffsetAt(ctx context.Context, t time.Time) error { return nil }

func (r *queuedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		msg := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *queuedReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func eventMessage(t *testing.T, device string) kafka.Message {
	t.Helper()
	b, err := json.Marshal(event(device, models.StatusCompleted))
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{Value: b}
}

func TestPartitionIDs(t *testing.T) {
	parts := []kafka.Partition{
		{Topic: "feature.completed", ID: 2},
		{Topic: "other", ID: 7},
		{Topic: "feature.completed", ID: 0},
		{Topic: "feature.completed", ID: 1},
	}
	if got := partitionIDs(parts, "feature.completed"); !reflect.DeepEqual(got, []int{0, 1, 2}) {
		t.Errorf("unexpected partitions %v", got)
	}
}

func TestConsumeAll_ReadsEveryPartition(t *testing.T) {
	readers := map[int]*queuedReader{
		0: {msgs: []kafka.Message{eventMessage(t, "d0")}},
		1: {msgs: []kafka.Message{eventMessage(t, "d1"), {Value: []byte("not json")}}},
		2: {msgs: []kafka.Message{eventMessage(t, "d2")}},
	}
	hub := newHub(10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consumeAll(ctx, hub, []int{0, 1, 2}, func(p int) messageReader { return readers[p] }, time.Hour)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(hub.Recent()) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected events from all partitions, got %+v", hub.Recent())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	seen := map[string]bool{}
	for _, ev := range hub.Recent() {
		seen[ev.DeviceID] = true
	}
	for _, d := range []string{"d0", "d1", "d2"} {
		if !seen[d] {
			t.Errorf("missing event from %s", d)
		}
	}
	for p, r := range readers {
		if !r.closed {
			t.Errorf("reader for partition %d not closed", p)
		}
	}
}
