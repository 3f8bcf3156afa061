package bus

import (
	"context"
	"fmt"

	"github.com/opensource-finance/harrier/internal/domain"
)

// MetaReplyTo carries the reply address of a request message.
const MetaReplyTo = "reply_to"

// New creates a new event bus based on configuration.
// For Community tier: returns ChannelBus.
// For Pro tier: returns NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

type responder interface {
	Respond(ctx context.Context, msg *domain.Message, payload []byte) error
}

// Respond answers a message received through Request. It is a no-op for
// plain published messages and for buses without request-reply support.
func Respond(ctx context.Context, b domain.EventBus, msg *domain.Message, payload []byte) error {
	if msg.Metadata[MetaReplyTo] == "" {
		return nil
	}
	r, ok := b.(responder)
	if !ok {
		return nil
	}
	return r.Respond(ctx, msg, payload)
}
