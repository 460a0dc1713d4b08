package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/seneschal/seneschal/internal/bus"
	"github.com/seneschal/seneschal/internal/engine"
)

var (
	chatMessage string
	chatSession string
	chatStream  bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the agent",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "Send a single message and exit")
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "console:local", "Conversation ID")
	chatCmd.Flags().BoolVar(&chatStream, "stream", false, "Print tokens as they arrive")
}

var exitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

func runChat(_ *cobra.Command, _ []string) error {
	c, err := buildContainer()
	if err != nil {
		return err
	}
	defer c.Close()

	// Without a channel manager the outbound side of the bus has no consumer;
	// drain it here so send_message deliveries show up on the terminal.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go printOutOfBand(ctx, c.MessageBus())

	userID := chatUserID(chatSession)

	if chatMessage != "" {
		return runSingleMessage(ctx, c.Engine(), userID)
	}
	return runInteractive(ctx, cancel, c.Engine(), userID)
}

// runSingleMessage sends one message and prints the reply.
func runSingleMessage(parent context.Context, eng *engine.Engine, userID string) error {
	ctx, cancel := context.WithTimeout(parent, 5*time.Minute)
	defer cancel()

	fmt.Fprintf(os.Stderr, "  ↳ thinking...\n")
	reply, err := respond(ctx, eng, chatMessage, userID)
	if err != nil {
		return err
	}
	if !chatStream {
		printReply(reply)
	}
	return nil
}

// runInteractive reads lines from stdin and runs one completion turn per
// line until EOF or an exit command.
func runInteractive(ctx context.Context, cancel context.CancelFunc, eng *engine.Engine, userID string) error {
	fmt.Printf("%s Interactive mode (type 'exit' or Ctrl+C to quit, '/new' to clear the session)\n\n", logo)

	listenForSignals(cancel)

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("You: ")

		if !scanner.Scan() {
			fmt.Println("\nGoodbye!")
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if exitCommands[strings.ToLower(line)] {
			fmt.Println("Goodbye!")
			return nil
		}
		if line == "/new" {
			eng.Clear(chatSession)
			fmt.Println("Session cleared.")
			continue
		}

		reply, err := respond(ctx, eng, line, userID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		if !chatStream {
			printReply(reply)
		}
	}
}

// respond runs one turn, streaming tokens to stdout when --stream is set.
// Replies that produce no tokens (capability-only rounds ending in a
// sentinel) are printed whole.
func respond(ctx context.Context, eng *engine.Engine, content, userID string) (string, error) {
	var onToken func(string)
	var streamed bool
	if chatStream {
		fmt.Printf("\n%s seneschal\n", logo)
		onToken = func(tok string) {
			streamed = true
			fmt.Print(tok)
		}
	}
	reply, err := eng.Respond(ctx, chatSession, content, onToken, userID)
	if chatStream && err == nil {
		if !streamed {
			fmt.Print(reply)
		}
		fmt.Print("\n\n")
	}
	return reply, err
}

// listenForSignals cancels ctx on SIGINT or SIGTERM and exits.
func listenForSignals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nGoodbye!")
		cancel()
		os.Exit(0)
	}()
}

// printOutOfBand prints non-token outbound frames, which in CLI mode can only
// come from the send_message tool.
func printOutOfBand(ctx context.Context, b *bus.MessageBus) {
	for {
		select {
		case msg := <-b.OutboundChan():
			if msg.Token || msg.Content == "" {
				continue
			}
			fmt.Printf("\n→ [%s:%s] %s\n", msg.Channel, msg.ChatID, msg.Content)
		case <-ctx.Done():
			return
		}
	}
}

func printReply(text string) {
	fmt.Printf("\n%s seneschal\n%s\n\n", logo, text)
}

// chatUserID derives the fact-scope user id from the session key.
func chatUserID(session string) string {
	if _, chatID, ok := strings.Cut(session, ":"); ok && chatID != "" {
		return chatID
	}
	return session
}
