//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/locate-annotation-service/internal/adapter/kafka"
	"github.com/couchcryptid/locate-annotation-service/internal/adapter/sqlite"
	"github.com/couchcryptid/locate-annotation-service/internal/config"
	"github.com/couchcryptid/locate-annotation-service/internal/domain"
	"github.com/couchcryptid/locate-annotation-service/internal/observability"
	"github.com/couchcryptid/locate-annotation-service/internal/pipeline"
)

const (
	testSessionTopic = "test-sessions"
	testDevice       = "6f1c2a3b-9d4e-4f50-8a61-7b2c3d4e5f60"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("test-cluster"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// staticSource serves a fixed history for every query.
type staticSource struct {
	points []domain.Point
}

func (s staticSource) Submit(_ context.Context, deviceID string) (string, error) {
	return "job-" + deviceID, nil
}

func (s staticSource) Ready(context.Context, string) (bool, error) { return true, nil }

func (s staticSource) Fetch(context.Context, string) ([]domain.Point, error) {
	return s.points, nil
}

// track builds three segments of two locates each, one degree of latitude
// apart.
func track() []domain.Point {
	start := time.Date(2024, time.April, 26, 9, 0, 0, 0, time.UTC)
	var points []domain.Point
	for seg := 0; seg < 3; seg++ {
		for i := 0; i < 2; i++ {
			points = append(points, domain.Point{
				ID:        testDevice,
				Timestamp: start.Add(time.Duration(seg*2+i) * 10 * time.Minute),
				Latitude:  40 + float64(seg),
				Longitude: -74 + float64(i)*0.0001,
				SupplyID:  "101",
			})
		}
	}
	return points
}

// TestSessionCompletionPublishesRecord drives a session to completion against
// the SQLite store and a real broker, then reads the record off the topic.
func TestSessionCompletionPublishesRecord(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSessionTopic)

	cfg := &config.Config{
		KafkaBrokers:      []string{broker},
		KafkaSessionTopic: testSessionTopic,
	}

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "annotations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	p := pipeline.New(staticSource{points: track()}, store, writer, nil,
		discardLogger(), observability.NewMetricsForTesting(), pipeline.Options{})

	s, err := p.Open(ctx, pipeline.OpenRequest{DeviceID: testDevice, UserID: "ana"})
	require.NoError(t, err)
	require.Equal(t, 3, s.Stats().Total)

	s.LabelCurrent(ctx, domain.LabelGood)
	s.LabelCurrent(ctx, domain.LabelBad)
	st := s.LabelCurrent(ctx, domain.LabelGood)
	require.True(t, st.Complete)
	require.NoError(t, p.Close(ctx, testDevice))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSessionTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from session topic")

	assert.Equal(t, testDevice, string(msg.Key))
	var rec domain.SessionRecord
	require.NoError(t, json.Unmarshal(msg.Value, &rec))
	assert.Equal(t, "ana", rec.UserID)
	assert.Equal(t, 6, rec.LocateCount)

	// The labels survive in the store and the record feeds the leaderboard.
	key := domain.KeyFor(mustPreset(t, domain.PresetDistance), testDevice)
	table, err := store.LoadTable(ctx, key)
	require.NoError(t, err)
	require.Len(t, table, 6)
	assert.Equal(t, domain.LabelGood, table[0].Label)
	assert.Equal(t, domain.LabelBad, table[2].Label)

	board, err := p.Leaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, "ana", board[0].UserID)
	assert.Equal(t, 6, board[0].Locates)
}

// TestReopenResumesFromStore checks that a closed session reopens from the
// persisted table without querying upstream.
func TestReopenResumesFromStore(t *testing.T) {
	ctx := context.Background()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "annotations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	p := pipeline.New(staticSource{points: track()}, store, nil, nil,
		discardLogger(), observability.NewMetricsForTesting(), pipeline.Options{})

	s, err := p.Open(ctx, pipeline.OpenRequest{DeviceID: testDevice, UserID: "ana"})
	require.NoError(t, err)
	s.LabelCurrent(ctx, domain.LabelBad)
	require.NoError(t, p.Close(ctx, testDevice))

	// No source this time: only the cached table can serve the reopen.
	p = pipeline.New(nil, store, nil, nil,
		discardLogger(), observability.NewMetricsForTesting(), pipeline.Options{})
	s, err = p.Open(ctx, pipeline.OpenRequest{DeviceID: testDevice, UserID: "bo"})
	require.NoError(t, err)

	st := s.Stats()
	assert.Equal(t, 1, st.Annotated)
	assert.Equal(t, 1, st.Bad)
	assert.Equal(t, 1, st.Current)
}

func mustPreset(t *testing.T, name string) domain.EngineConfig {
	t.Helper()
	cfg, ok := domain.PresetByName(name)
	require.True(t, ok)
	return cfg
}
