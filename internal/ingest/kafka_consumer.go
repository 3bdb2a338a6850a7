package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/accessiride/internal/models"
	"github.com/example/accessiride/internal/observability"
)

// MessageReader is the subset of *kafka.Reader the mirror loop needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Applier mirrors one report event into local state.
type Applier interface {
	Apply(ctx context.Context, ev models.ReportEvent) error
}

func NewKafkaReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     group,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
}

// Consume reads report events until ctx ends and applies them to a.
// Events published by origin are skipped; malformed ones are counted and
// dropped.
func Consume(ctx context.Context, r MessageReader, a Applier, origin string, logger *slog.Logger) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second

		ev, err := DecodeReportEvent(m.Value)
		if err != nil {
			observability.EventsConsumed.WithLabelValues("invalid").Inc()
			logger.Warn("invalid message", "offset", m.Offset, "error", err)
			continue
		}
		if ev.Origin == origin {
			observability.EventsConsumed.WithLabelValues("skipped").Inc()
			continue
		}
		if err := a.Apply(ctx, ev); err != nil {
			observability.EventsConsumed.WithLabelValues("invalid").Inc()
			logger.Warn("report event rejected", "kind", ev.Kind, "report_id", ev.ReportID, "error", err)
			continue
		}
		observability.EventsConsumed.WithLabelValues("applied").Inc()
		logger.Debug("report event applied", "kind", ev.Kind, "report_id", ev.ReportID, "origin", ev.Origin)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
