package events

import (
	"context"
	"log/slog"

	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
)

// RetailTopics maps each outbound retail event to its topic. Order lifecycle
// events share one topic so consumers see them in partition order.
func RetailTopics(ordersTopic, allocationsTopic string) map[string]string {
	return map[string]string{
		domain.EventOrderSubmitted:     ordersTopic,
		domain.EventOrderStatusChanged: ordersTopic,
		domain.EventAllocationChanged:  allocationsTopic,
	}
}

// LoggingPublisher records where each event would be routed when no brokers
// are configured.
type LoggingPublisher struct {
	logger       *slog.Logger
	topicByEvent map[string]string
}

func NewLoggingPublisher(logger *slog.Logger, topicByEvent map[string]string) *LoggingPublisher {
	return &LoggingPublisher{logger: logger, topicByEvent: topicByEvent}
}

func (p *LoggingPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	p.logger.InfoContext(ctx, "retail event routed to log",
		"module", "events.retail_publisher",
		"layer", "adapter",
		"operation", "publish_retail_event",
		"outcome", "logged",
		"topic", topicFor(p.topicByEvent, eventType),
		"event_type", eventType,
		"partition_key", partitionKey,
		"payload_bytes", len(payload),
	)
	return nil
}

var _ ports.EventPublisher = (*LoggingPublisher)(nil)
