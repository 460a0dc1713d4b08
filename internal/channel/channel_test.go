package channel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seneschal/seneschal/internal/bus"
	"github.com/seneschal/seneschal/internal/config"
)

func TestSplitMessage_ShortContentUntouched(t *testing.T) {
	chunks := splitMessage("hello", 100)
	require.Equal(t, []string{"hello"}, chunks)
}

func TestSplitMessage_PrefersNewlineBreaks(t *testing.T) {
	content := "first line\nsecond line\nthird line"
	chunks := splitMessage(content, 24)

	require.Greater(t, len(chunks), 1)
	require.Equal(t, "first line\nsecond line", chunks[0])
	for _, c := range chunks {
		require.LessOrEqual(t, len(c), 24)
	}
	require.Equal(t, strings.ReplaceAll(content, "\n", ""), strings.ReplaceAll(strings.Join(chunks, ""), "\n", ""))
}

func TestSplitMessage_FallsBackToSpaces(t *testing.T) {
	content := strings.Repeat("word ", 20)
	chunks := splitMessage(strings.TrimSpace(content), 32)

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		require.LessOrEqual(t, len(c), 32)
		require.False(t, strings.HasPrefix(c, " "))
	}
}

func TestSplitMessage_HardCutWithoutBreakpoints(t *testing.T) {
	content := strings.Repeat("x", 100)
	chunks := splitMessage(content, 40)

	require.Equal(t, []string{strings.Repeat("x", 40), strings.Repeat("x", 40), strings.Repeat("x", 20)}, chunks)
}

func TestAllowed(t *testing.T) {
	require.True(t, allowed(nil, "anyone"))
	require.True(t, allowed([]string{}, "anyone"))
	require.True(t, allowed([]string{"42"}, "42"))
	require.True(t, allowed([]string{"alice"}, "42", "alice"))
	require.False(t, allowed([]string{"42"}, "43", "bob"))
	require.False(t, allowed([]string{"42"}, ""))
}

func TestManagerRegistersEnabledChannels(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Channels.Telegram.Enabled = false
	cfg.Channels.Slack.Enabled = false
	cfg.Channels.Gateway.Enabled = true

	m := NewManager(&cfg, bus.NewMessageBus(4))

	require.ElementsMatch(t, []string{"console", "gateway"}, m.Names())
	require.Equal(t, 2, m.Count())
}

func TestConsoleSendDropsTokenFrames(t *testing.T) {
	c := NewConsole(bus.NewMessageBus(4))

	require.NoError(t, c.Send(bus.NewTokenMessage("console", ConsoleChatID, "par")))
	require.NoError(t, c.Send(bus.NewOutboundMessage("console", ConsoleChatID, "full reply")))

	select {
	case got := <-c.replies:
		require.Equal(t, "full reply", got.Content)
	default:
		t.Fatal("expected a queued reply")
	}
	select {
	case got := <-c.replies:
		t.Fatalf("unexpected extra frame: %+v", got)
	default:
	}
}
