// Package channels defines the chat transport abstraction and routes
// outbound replies to the channel that received the original message.
package channels

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/joinbridge/internal/bus"
)

// Channel is a chat transport.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// BaseChannel carries the fields every channel shares.
type BaseChannel struct {
	name string
	bus  *bus.MessageBus
}

// NewBaseChannel creates a BaseChannel.
func NewBaseChannel(name string, msgBus *bus.MessageBus) *BaseChannel {
	return &BaseChannel{name: name, bus: msgBus}
}

func (c *BaseChannel) Name() string         { return c.name }
func (c *BaseChannel) Bus() *bus.MessageBus { return c.bus }

// Manager owns the running channels.
type Manager struct {
	bus *bus.MessageBus

	mu       sync.RWMutex
	channels map[string]Channel
}

// NewManager creates a Manager bound to msgBus.
func NewManager(msgBus *bus.MessageBus) *Manager {
	return &Manager{bus: msgBus, channels: make(map[string]Channel)}
}

// Register adds ch, replacing any channel with the same name.
func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

// Get returns the channel registered under name.
func (m *Manager) Get(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// StartAll starts every registered channel. The first failure stops the
// channels already started and is returned.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var started []Channel
	for name, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			for _, s := range started {
				_ = s.Stop(ctx)
			}
			slog.Error("channel start failed", "channel", name, "error", err)
			return err
		}
		started = append(started, ch)
		slog.Info("channel started", "channel", name)
	}
	return nil
}

// StopAll stops every registered channel, logging failures.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, ch := range m.channels {
		if err := ch.Stop(ctx); err != nil {
			slog.Warn("channel stop failed", "channel", name, "error", err)
		}
	}
}

// DispatchOutbound delivers outbound messages until ctx is cancelled.
// Messages for unknown channels are dropped with a warning.
func (m *Manager) DispatchOutbound(ctx context.Context) {
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		ch, found := m.Get(msg.Channel)
		if !found {
			slog.Warn("outbound message for unknown channel", "channel", msg.Channel)
			continue
		}
		if err := ch.Send(ctx, msg); err != nil {
			slog.Warn("send failed", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
		}
	}
}
