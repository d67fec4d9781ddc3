package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fathima-sithara/relay-service/internal/config"
	"github.com/fathima-sithara/relay-service/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	calls  int
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func testKafkaConfig() config.Kafka {
	return config.Kafka{
		TopicMessageCreated: "message.created",
		QueueSize:           64,
		WriteTimeout:        time.Second,
		BreakerMaxFailures:  3,
		BreakerTimeout:      time.Minute,
	}
}

func TestKafkaPublisherDeliversInOrder(t *testing.T) {
	req := require.New(t)
	// Given
	w := &fakeWriter{}
	p := newKafkaPublisher(w, testKafkaConfig(), zap.NewNop())

	// When
	for _, content := range []string{"one", "two", "three"} {
		p.PublishMessageCreated(context.Background(), domain.Message{ID: content, From: "b", To: "a", Content: content, Kind: domain.KindText})
	}
	req.NoError(p.Close())

	// Then
	req.True(w.closed)
	req.Len(w.msgs, 3)
	for i, content := range []string{"one", "two", "three"} {
		req.Equal("a:b", string(w.msgs[i].Key))
		var ev MessageCreated
		req.NoError(json.Unmarshal(w.msgs[i].Value, &ev))
		req.Equal(TypeMessageCreated, ev.Type)
		req.Equal(content, ev.Message.Content)
	}
}

func TestKafkaPublisherBreakerOpens(t *testing.T) {
	req := require.New(t)
	// Given a broker that always fails
	w := &fakeWriter{err: errors.New("broker down")}
	p := newKafkaPublisher(w, testKafkaConfig(), zap.NewNop())

	// When
	for i := 0; i < 10; i++ {
		p.PublishMessageCreated(context.Background(), domain.Message{From: "a", To: "b"})
	}
	req.NoError(p.Close())

	// Then the breaker stops calling the writer after three failures
	req.Equal(3, w.calls)
}

func TestKafkaPublisherIgnoresPublishAfterClose(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, testKafkaConfig(), zap.NewNop())
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	require.NotPanics(t, func() {
		p.PublishMessageCreated(context.Background(), domain.Message{From: "a", To: "b"})
	})
	require.Empty(t, w.msgs)
}

func TestConversationKeySymmetric(t *testing.T) {
	require.Equal(t, ConversationKey("x", "y"), ConversationKey("y", "x"))
	require.Equal(t, "x:y", ConversationKey("y", "x"))
}
