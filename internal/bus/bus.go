// Package bus routes messages between chat channels and the command
// dispatcher.
package bus

import (
	"context"
)

// MessageBus carries inbound messages from channels to the dispatcher and
// replies back out to channels.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
}

func New() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, 100),
		outbound: make(chan OutboundMessage, 100),
	}
}

// PublishInbound queues an inbound message from a channel.
// Blocks while the queue is full unless ctx is cancelled first.
func (mb *MessageBus) PublishInbound(ctx context.Context, msg InboundMessage) bool {
	select {
	case mb.inbound <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// ConsumeInbound blocks until an inbound message is available or ctx is cancelled.
func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-mb.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// PublishOutbound queues a reply for delivery.
// Blocks while the queue is full unless ctx is cancelled first.
func (mb *MessageBus) PublishOutbound(ctx context.Context, msg OutboundMessage) bool {
	select {
	case mb.outbound <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// SubscribeOutbound blocks until an outbound message is available or ctx is cancelled.
func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-mb.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}
