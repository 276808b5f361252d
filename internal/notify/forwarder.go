package notify

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"loyalty-hub/internal/event"
)

const publishTimeout = 5 * time.Second

// ForwardedEvents are relayed to the broker with the event name as routing key.
var ForwardedEvents = []string{
	event.EventVisitApproved,
	event.EventVisitRejected,
	event.EventRedemptionCreated,
	event.EventRedemptionUsed,
}

// Forwarder relays committed domain events to external collaborators such
// as email delivery and reporting.
type Forwarder struct {
	publisher Publisher
	exchange  string
	logger    *zap.Logger
}

func NewForwarder(publisher Publisher, exchange string, logger *zap.Logger) *Forwarder {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if strings.TrimSpace(exchange) == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Forwarder{
		publisher: publisher,
		exchange:  exchange,
		logger:    logger,
	}
}

func (f *Forwarder) Attach(bus *event.Bus) {
	for _, name := range ForwardedEvents {
		eventName := name
		bus.Subscribe(eventName, func(payload any) {
			f.forward(eventName, payload)
		})
	}
}

func (f *Forwarder) forward(eventName string, payload any) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := f.publisher.Publish(ctx, f.exchange, eventName, payload); err != nil {
		f.logger.Warn("forward event failed",
			zap.String("event", eventName),
			zap.String("exchange", f.exchange),
			zap.Error(err),
		)
		return
	}
	f.logger.Debug("event forwarded", zap.String("event", eventName))
}
