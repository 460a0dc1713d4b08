// Package bus decouples channel adapters from the engine with buffered
// in-process queues: adapters publish InboundMessages, the serve dispatcher
// runs each through the engine and publishes OutboundMessages back, and the
// channel manager routes those to the right adapter.
package bus

import (
	"time"
	"unicode/utf8"
)

const previewLen = 80

// InboundMessage is one user utterance arriving from a channel adapter.
type InboundMessage struct {
	Channel    string
	SenderID   string
	ChatID     string
	Content    string
	ReceivedAt time.Time
}

// NewInboundMessage creates an InboundMessage stamped with the current time.
func NewInboundMessage(channel, senderID, chatID, content string) InboundMessage {
	return InboundMessage{
		Channel:    channel,
		SenderID:   senderID,
		ChatID:     chatID,
		Content:    content,
		ReceivedAt: time.Now(),
	}
}

// ConversationKey identifies the conversation this message belongs to:
// "<channel>:<chatId>". The engine keys history and locks on it, and the
// send_message tool accepts it as a destination.
func (m InboundMessage) ConversationKey() string {
	return m.Channel + ":" + m.ChatID
}

// Preview returns the content clipped for log lines.
func (m InboundMessage) Preview() string {
	if utf8.RuneCountInString(m.Content) <= previewLen {
		return m.Content
	}
	runes := []rune(m.Content)
	return string(runes[:previewLen]) + "..."
}

// OutboundMessage is one frame headed back to a channel adapter. Token frames
// carry a single streamed text fragment; adapters that cannot render partial
// output drop them and deliver only the final reply.
type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
	Token   bool
}

// NewOutboundMessage creates a final-reply frame.
func NewOutboundMessage(channel, chatID, content string) OutboundMessage {
	return OutboundMessage{Channel: channel, ChatID: chatID, Content: content}
}

// NewTokenMessage creates a streamed-fragment frame.
func NewTokenMessage(channel, chatID, token string) OutboundMessage {
	return OutboundMessage{Channel: channel, ChatID: chatID, Content: token, Token: true}
}

// MessageBus carries inbound and outbound messages on buffered channels.
// Publishing blocks when a queue is full, which backpressures the producer
// instead of dropping messages.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
}

// NewMessageBus creates a MessageBus with the given per-direction buffer size.
func NewMessageBus(size int) *MessageBus {
	if size <= 0 {
		size = 100
	}
	return &MessageBus{
		inbound:  make(chan InboundMessage, size),
		outbound: make(chan OutboundMessage, size),
	}
}

// PublishInbound enqueues a message for the engine dispatcher.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	b.inbound <- msg
}

// PublishOutbound enqueues a frame for the channel manager.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.outbound <- msg
}

// InboundChan returns the receive side of the inbound queue.
func (b *MessageBus) InboundChan() <-chan InboundMessage {
	return b.inbound
}

// OutboundChan returns the receive side of the outbound queue.
func (b *MessageBus) OutboundChan() <-chan OutboundMessage {
	return b.outbound
}
