// Event viewer consumes terminal events from Kafka and relays them to
// browsers over WebSocket.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"vibe-transcriber-service/internal/models"
	"vibe-transcriber-service/internal/observability/logging"
)

// messageReader is the subset of *kafka.Reader used by the consumer.
type messageReader interface {
	SetOffsetAt(ctx context.Context, t time.Time) error
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// partitionIDs returns the sorted partition ids of topic.
func partitionIDs(parts []kafka.Partition, topic string) []int {
	var ids []int
	for _, p := range parts {
		if p.Topic == topic {
			ids = append(ids, p.ID)
		}
	}
	sort.Ints(ids)
	return ids
}

// lookupPartitions lists the topic's partitions from the first reachable broker.
func lookupPartitions(ctx context.Context, brokers []string, topic string) ([]int, error) {
	var lastErr error
	for _, broker := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		parts, err := conn.ReadPartitions(topic)
		conn.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return partitionIDs(parts, topic), nil
	}
	return nil, fmt.Errorf("read partitions of %s: %w", topic, lastErr)
}

// consumeAll runs one partition reader per partition (no consumer group, which
// works better through port-forward) and returns when every reader stops.
func consumeAll(ctx context.Context, hub *Hub, partitions []int, open func(partition int) messageReader, since time.Duration) {
	var wg sync.WaitGroup
	for _, id := range partitions {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			consumePartition(ctx, hub, id, open(id), since)
		}(id)
	}
	wg.Wait()
}

func consumePartition(ctx context.Context, hub *Hub, partition int, reader messageReader, since time.Duration) {
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
		log.Warn().Err(err).Int("partition", partition).Msg("Failed to seek, reading from the current offset")
	}
	log.Info().Int("partition", partition).Dur("since", since).Msg("Consuming terminal events")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Int("partition", partition).Msg("Kafka read error")
			time.Sleep(time.Second)
			continue
		}

		var ev models.TerminalEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			log.Warn().Err(err).Msg("Skipping malformed event")
			continue
		}

		log.Info().
			Int("partition", partition).
			Str("deviceId", ev.DeviceID).
			Str("recordedAt", ev.RecordedAt).
			Str("status", string(ev.Status)).
			Msg("Event received")
		hub.Broadcast(ev)
	}
}

func consumeKafka(ctx context.Context, hub *Hub, brokers, topic string, since time.Duration) {
	brokerList := strings.Split(brokers, ",")
	partitions, err := lookupPartitions(ctx, brokerList, topic)
	if err != nil || len(partitions) == 0 {
		log.Warn().Err(err).Str("topic", topic).Msg("Partition lookup failed, reading partition 0 only")
		partitions = []int{0}
	}

	open := func(partition int) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:   brokerList,
			Topic:     topic,
			Partition: partition,
			MinBytes:  1,
			MaxBytes:  10e6,
		})
	}
	log.Info().Str("topic", topic).Ints("partitions", partitions).Msg("Starting partition readers")
	consumeAll(ctx, hub, partitions, open, since)
}

func main() {
	port := flag.String("port", "8081", "HTTP server port")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "feature.completed", "Terminal event topic")
	since := flag.Duration("since", time.Hour, "Replay events newer than this")
	keep := flag.Int("keep", 200, "Events retained for new clients")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console", Service: "event-viewer"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := newHub(*keep)
	go consumeKafka(ctx, hub, *brokers, *topic, *since)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.wsHandler)
	mux.HandleFunc("/recent", hub.recentHandler)
	server := &http.Server{Addr: ":" + *port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", server.Addr).Str("brokers", *brokers).Str("topic", *topic).Msg("Event viewer starting")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Server error")
	}
}
