package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	slackgo "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/seneschal/seneschal/internal/bus"
	"github.com/seneschal/seneschal/internal/config"
)

// Slack runs a Slack bot via Socket Mode.
type Slack struct {
	cfg       config.SlackConfig
	bus       *bus.MessageBus
	webClient *slackgo.Client
	smClient  *socketmode.Client
	botUserID string
}

// NewSlack creates a Slack channel.
func NewSlack(cfg config.SlackConfig, b *bus.MessageBus) *Slack {
	return &Slack{cfg: cfg, bus: b}
}

func (s *Slack) Name() string { return "slack" }

// Start opens the Socket Mode connection and consumes events until ctx is
// cancelled.
func (s *Slack) Start(ctx context.Context) error {
	if s.cfg.BotToken == "" || s.cfg.AppToken == "" {
		return fmt.Errorf("slack: bot/app token not configured")
	}

	s.webClient = slackgo.New(s.cfg.BotToken,
		slackgo.OptionAppLevelToken(s.cfg.AppToken))

	if resp, err := s.webClient.AuthTestContext(ctx); err == nil {
		s.botUserID = resp.UserID
		slog.Info("slack: connected", "bot_user_id", s.botUserID)
	}

	s.smClient = socketmode.New(s.webClient)

	go s.smClient.RunContext(ctx) //nolint:errcheck

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-s.smClient.Events:
			if !ok {
				return nil
			}
			s.handleEvent(evt)
		}
	}
}

func (s *Slack) handleEvent(evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		s.smClient.Ack(*evt.Request)
		cb, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if cb.InnerEvent.Type != "message" && cb.InnerEvent.Type != "app_mention" {
			return
		}
		s.handleInnerEvent(cb.InnerEvent)
	}
}

// handleInnerEvent parses a message or app_mention event. Inner event data
// arrives as map[string]interface{}, so fields are read manually.
func (s *Slack) handleInnerEvent(ev slackevents.EventsAPIInnerEvent) {
	data, ok := ev.Data.(map[string]interface{})
	if !ok {
		return
	}
	userID, _ := data["user"].(string)
	channelID, _ := data["channel"].(string)
	text, _ := data["text"].(string)
	subtype, _ := data["subtype"].(string)

	if subtype != "" || userID == "" || channelID == "" {
		return
	}
	if userID == s.botUserID {
		return
	}
	// A mention fires both a message and an app_mention event; keep one.
	if ev.Type == "message" && s.botUserID != "" && strings.Contains(text, "<@"+s.botUserID+">") {
		return
	}

	s.bus.PublishInbound(bus.NewInboundMessage("slack", userID, channelID, s.stripMention(text)))
}

func (s *Slack) stripMention(text string) string {
	if s.botUserID == "" {
		return text
	}
	return strings.TrimSpace(strings.ReplaceAll(text, "<@"+s.botUserID+">", ""))
}

// Send posts a final reply to the originating channel. Token frames are
// dropped.
func (s *Slack) Send(msg bus.OutboundMessage) error {
	if msg.Token || s.webClient == nil {
		return nil
	}
	_, _, err := s.webClient.PostMessage(msg.ChatID, slackgo.MsgOptionText(msg.Content, false))
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}
