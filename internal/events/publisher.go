package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/fathima-sithara/relay-service/internal/config"
	"github.com/fathima-sithara/relay-service/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const TypeMessageCreated = "message.created"

// MessageCreated is the event emitted for every persisted message.
type MessageCreated struct {
	Type       string         `json:"type"`
	Message    domain.Message `json:"message"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Publisher hands persisted messages to downstream consumers. Publishing
// never blocks the caller and never fails the send.
type Publisher interface {
	PublishMessageCreated(ctx context.Context, m domain.Message)
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) PublishMessageCreated(context.Context, domain.Message) {}
func (NopPublisher) Close() error                                          { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	w            messageWriter
	breaker      *gobreaker.CircuitBreaker
	log          *zap.Logger
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan kafka.Message
	wg     sync.WaitGroup
}

func NewKafkaPublisher(cfg config.Kafka, log *zap.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicMessageCreated,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaPublisher(w, cfg, log)
}

func newKafkaPublisher(w messageWriter, cfg config.Kafka, log *zap.Logger) *KafkaPublisher {
	st := gobreaker.Settings{
		Name:        "kafka-" + cfg.TopicMessageCreated,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 1
	}
	p := &KafkaPublisher{
		w:            w,
		breaker:      gobreaker.NewCircuitBreaker(st),
		log:          log,
		writeTimeout: cfg.WriteTimeout,
		queue:        make(chan kafka.Message, size),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// ConversationKey is the same for both directions of a conversation, so one
// conversation always lands on one partition.
func ConversationKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

func (p *KafkaPublisher) PublishMessageCreated(_ context.Context, m domain.Message) {
	b, err := json.Marshal(MessageCreated{Type: TypeMessageCreated, Message: m, OccurredAt: time.Now().UTC()})
	if err != nil {
		p.log.Error("marshal message.created", zap.Error(err))
		return
	}
	km := kafka.Message{Key: []byte(ConversationKey(m.From, m.To)), Value: b, Time: m.Timestamp}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- km:
	default:
		p.log.Warn("event queue full, dropping message.created", zap.String("message_id", m.ID))
	}
}

func (p *KafkaPublisher) run() {
	defer p.wg.Done()
	for km := range p.queue {
		_, err := p.breaker.Execute(func() (interface{}, error) {
			ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
			defer cancel()
			return nil, p.w.WriteMessages(ctx, km)
		})
		if err != nil {
			p.log.Warn("publish message.created", zap.Error(err), zap.ByteString("key", km.Key))
		}
	}
}

// Close stops accepting events, drains the queue and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	return p.w.Close()
}
