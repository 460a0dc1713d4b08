package channel

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/seneschal/seneschal/internal/bus"
)

// ConsoleChatID keys the console conversation; there is exactly one.
const ConsoleChatID = "local"

var consoleExitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

// Console wires the terminal into the bus: stdin lines become inbound
// messages and replies routed back to the console are printed to stdout.
type Console struct {
	bus     *bus.MessageBus
	replies chan bus.OutboundMessage
}

// NewConsole creates a Console channel.
func NewConsole(b *bus.MessageBus) *Console {
	return &Console{
		bus:     b,
		replies: make(chan bus.OutboundMessage, 16),
	}
}

func (c *Console) Name() string { return "console" }

// Start runs the stdin REPL. Blocks until ctx is cancelled or stdin closes.
func (c *Console) Start(ctx context.Context) error {
	fmt.Printf("Console ready. Type 'exit' or press Ctrl+C to quit.\n\n")

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("You: ")

		scanDone := make(chan bool, 1)
		go func() {
			scanDone <- scanner.Scan()
		}()

		select {
		case ok := <-scanDone:
			if !ok {
				fmt.Println("\nGoodbye!")
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if consoleExitCommands[strings.ToLower(line)] {
			fmt.Println("Goodbye!")
			return nil
		}

		c.bus.PublishInbound(bus.NewInboundMessage("console", ConsoleChatID, ConsoleChatID, line))
		c.waitForReply(ctx)
	}
}

// waitForReply blocks until the dispatcher publishes the final reply for the
// console, then prints it.
func (c *Console) waitForReply(ctx context.Context) {
	for {
		select {
		case msg := <-c.replies:
			fmt.Printf("\nseneschal: %s\n\n", msg.Content)
			return
		case <-ctx.Done():
			return
		}
	}
}

// Send queues a reply for the REPL loop to print. Token frames are dropped;
// the console renders complete replies only. A full queue drops the frame
// rather than stalling the outbound dispatcher.
func (c *Console) Send(msg bus.OutboundMessage) error {
	if msg.Token || msg.Content == "" {
		return nil
	}
	select {
	case c.replies <- msg:
	default:
	}
	return nil
}
