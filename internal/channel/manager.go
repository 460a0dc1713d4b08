package channel

import (
	"context"
	"log/slog"

	"github.com/seneschal/seneschal/internal/bus"
	"github.com/seneschal/seneschal/internal/config"
)

// Manager owns the enabled channels and routes outbound frames to them.
type Manager struct {
	channels map[string]Channel
	bus      *bus.MessageBus
}

// NewManager creates a Manager with every enabled channel. The console is
// always registered.
func NewManager(cfg *config.Config, b *bus.MessageBus) *Manager {
	m := &Manager{
		channels: make(map[string]Channel),
		bus:      b,
	}

	m.register(NewConsole(b))
	if cfg.Channels.Telegram.Enabled {
		m.register(NewTelegram(cfg.Channels.Telegram, b))
	}
	if cfg.Channels.Slack.Enabled {
		m.register(NewSlack(cfg.Channels.Slack, b))
	}
	if cfg.Channels.Gateway.Enabled {
		m.register(NewGateway(cfg.Channels.Gateway, b))
	}

	return m
}

func (m *Manager) register(ch Channel) {
	m.channels[ch.Name()] = ch
	slog.Info("channel enabled", "name", ch.Name())
}

// Names returns the names of all registered channels.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.channels))
	for n := range m.channels {
		names = append(names, n)
	}
	return names
}

// Count returns the number of registered channels.
func (m *Manager) Count() int { return len(m.channels) }

// StartAll starts every channel plus the outbound dispatcher and blocks
// until ctx is cancelled.
func (m *Manager) StartAll(ctx context.Context) error {
	go m.dispatchOutbound(ctx)

	for name, ch := range m.channels {
		go func(n string, c Channel) {
			slog.Info("starting channel", "name", n)
			if err := c.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("channel exited with error", "name", n, "err", err)
			}
		}(name, ch)
	}

	<-ctx.Done()
	return ctx.Err()
}

// dispatchOutbound reads outbound frames from the bus and hands each to the
// owning channel's Send.
func (m *Manager) dispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-m.bus.OutboundChan():
			ch, ok := m.channels[msg.Channel]
			if !ok {
				slog.Debug("unknown channel for outbound message", "channel", msg.Channel)
				continue
			}
			if err := ch.Send(msg); err != nil {
				slog.Error("send error", "channel", msg.Channel, "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
