package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/accessiride/internal/models"
	"github.com/example/accessiride/internal/observability"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher ships report events and booking outcomes to Kafka. Publishing
// never blocks the caller: messages go through a bounded queue and are
// dropped when it is full.
type Publisher struct {
	writer        MessageWriter
	reportsTopic  string
	outcomesTopic string
	timeout       time.Duration
	logger        *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan kafka.Message
	wg     sync.WaitGroup
}

func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
}

// NewPublisher starts the delivery goroutine. Close must be called to
// flush the queue.
func NewPublisher(w MessageWriter, reportsTopic, outcomesTopic string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		writer:        w,
		reportsTopic:  reportsTopic,
		outcomesTopic: outcomesTopic,
		timeout:       2 * time.Second,
		logger:        logger,
		queue:         make(chan kafka.Message, 256),
	}
	p.wg.Add(1)
	go p.loop()
	return p
}

func (p *Publisher) loop() {
	defer p.wg.Done()
	for msg := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.writer.WriteMessages(ctx, msg)
		cancel()
		if err != nil {
			observability.EventsPublished.WithLabelValues(msg.Topic, "error").Inc()
			p.logger.Warn("kafka publish failed", "topic", msg.Topic, "key", string(msg.Key), "error", err)
			continue
		}
		observability.EventsPublished.WithLabelValues(msg.Topic, "ok").Inc()
	}
}

func (p *Publisher) enqueue(topic, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("kafka encode failed", "topic", topic, "error", err)
		return
	}
	msg := kafka.Message{Topic: topic, Key: []byte(key), Value: b}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- msg:
	default:
		observability.EventsPublished.WithLabelValues(topic, "dropped").Inc()
		p.logger.Warn("kafka queue full, event dropped", "topic", topic, "key", key)
	}
}

// PublishReport matches storage.ReportObserver.
func (p *Publisher) PublishReport(_ context.Context, ev models.ReportEvent) {
	p.enqueue(p.reportsTopic, ev.ReportID, ev)
}

// PublishOutcome matches booking.OutcomeFunc.
func (p *Publisher) PublishOutcome(o models.BookingOutcome) {
	p.enqueue(p.outcomesTopic, o.RunID+"/"+o.ProviderID, o)
}

// Close drains queued messages and closes the writer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	return p.writer.Close()
}

// DecodeReportEvent parses a message value written by PublishReport.
func DecodeReportEvent(b []byte) (models.ReportEvent, error) {
	var ev models.ReportEvent
	err := json.Unmarshal(b, &ev)
	return ev, err
}
