package runtime

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/reqflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/reqflow/internal/runtime/logging"
)

// Topics published by the runtime's event bus.
const (
	TopicStateTransitions = "runtime.state"
	TopicRequests         = "runtime.requests"
)

// RequestEvent is published on TopicRequests after every handled request.
type RequestEvent struct {
	RequestID     string  `json:"request_id"`
	Method        string  `json:"method"`
	Target        string  `json:"target"`
	StatusCode    int     `json:"status_code"`
	DurationMs    float64 `json:"duration_ms"`
	ResponseBytes int     `json:"response_bytes"`
}

// EventBus lets embedding applications observe the runtime without polling:
// lifecycle transitions and request completions are published on in-process
// gochannel topics. Publishing is best-effort; a full subscriber never blocks
// request handling beyond the channel buffer.
type EventBus struct {
	pubSub *gochannel.GoChannel
	logger loggingpkg.ServiceLogger

	closeOnce sync.Once
	closeErr  error
}

// NewEventBus builds the bus on top of watermill's gochannel pub/sub.
func NewEventBus(logger loggingpkg.ServiceLogger) *EventBus {
	if logger == nil {
		logger = loggingpkg.NewNopLogger()
	}
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, loggingpkg.NewWatermillAdapter(logger))

	return &EventBus{pubSub: pubSub, logger: logger}
}

// Subscribe returns a channel of messages for a topic. The channel closes
// when the bus closes or the context is cancelled.
func (b *EventBus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubSub.Subscribe(ctx, topic)
}

// PublishStateTransition emits a lifecycle transition event.
func (b *EventBus) PublishStateTransition(tr StateTransition) {
	b.publish(TopicStateTransitions, map[string]any{
		"from": tr.From.String(),
		"to":   tr.To.String(),
		"at":   tr.At,
	})
}

// PublishRequestEvent emits a request-completion event.
func (b *EventBus) PublishRequestEvent(ev RequestEvent) {
	b.publish(TopicRequests, ev)
}

func (b *EventBus) publish(topic string, payload any) {
	data, err := jsoncodec.Marshal(payload)
	if err != nil {
		b.logger.Error("failed to marshal event payload", err, loggingpkg.LogFields{"topic": topic})
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := b.pubSub.Publish(topic, msg); err != nil {
		b.logger.Error("failed to publish event", err, loggingpkg.LogFields{"topic": topic})
	}
}

// Close shuts the bus down and closes all subscriber channels. Idempotent.
func (b *EventBus) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.pubSub.Close()
	})
	return b.closeErr
}
