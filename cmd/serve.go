package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/seneschal/seneschal/internal/bus"
	"github.com/seneschal/seneschal/internal/channel"
	"github.com/seneschal/seneschal/internal/config"
	"github.com/seneschal/seneschal/internal/container"
	"github.com/seneschal/seneschal/internal/engine"
	"github.com/seneschal/seneschal/internal/heartbeat"
	"github.com/seneschal/seneschal/internal/scheduler"
	"github.com/seneschal/seneschal/internal/schema"
)

var serveVerbose bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the seneschal runtime with all enabled channels",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVarP(&serveVerbose, "verbose", "v", false, "Verbose logging")
}

func runServe(_ *cobra.Command, _ []string) error {
	if serveVerbose {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	c, err := container.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Printf("%s Starting seneschal (provider: %s, model: %s)...\n", logo, c.Backend().Name(), cfg.Agent.Model)

	eng := c.Engine()
	b := c.MessageBus()
	sched := c.Scheduler()

	// Scheduled jobs run their prompt in a per-job conversation; delivery is
	// optional and goes out through the bus like any other reply.
	sched.SetOnJob(func(ctx context.Context, job scheduler.Job) (string, error) {
		reply, err := eng.Respond(ctx, "job:"+job.ID, job.Payload.Prompt, nil, "")
		if err != nil {
			return "", err
		}
		if job.Payload.Deliver && job.Payload.Channel != nil && job.Payload.To != nil {
			b.PublishOutbound(bus.NewOutboundMessage(*job.Payload.Channel, *job.Payload.To, reply))
		}
		return reply, nil
	})
	sched.SetCompaction(func(ctx context.Context) int {
		return eng.CompactPending(ctx, cfg.Memory.CompactMinQueue)
	}, time.Duration(cfg.Memory.CompactIntervalSeconds)*time.Second)
	if !cfg.Scheduler.Enabled {
		sched.DisableJobs()
	}

	var hb *heartbeat.Service
	if cfg.Heartbeat.Enabled {
		hb = heartbeat.NewService(
			cfg.Heartbeat.Prompt,
			time.Duration(cfg.Heartbeat.IntervalSeconds)*time.Second,
			func(ctx context.Context, prompt string) error {
				_, err := eng.RespondOnce(ctx, prompt, nil)
				return err
			},
		)
	}

	// Graceful shutdown context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	channelMgr := channel.NewManager(cfg, b)
	fmt.Printf("✓ Channels enabled: %s\n", strings.Join(channelMgr.Names(), ", "))

	installStatusProvider(c, channelMgr, hb)

	g.Go(func() error { return dispatchInbound(gctx, b, eng) })
	g.Go(func() error { return channelMgr.StartAll(gctx) })
	g.Go(func() error { return sched.Start(gctx) })
	if hb != nil {
		g.Go(func() error { return hb.Start(gctx) })
	}

	fmt.Printf("%s Runtime up. Press Ctrl+C to stop.\n", logo)

	if err := g.Wait(); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "serve error: %v\n", err)
		return err
	}
	fmt.Println("\nShutdown complete.")
	return nil
}

// installStatusProvider feeds live runtime state into the composed prompt.
func installStatusProvider(c *container.Container, mgr *channel.Manager, hb *heartbeat.Service) {
	start := time.Now()
	mem := c.Memory()
	sched := c.Scheduler()

	c.Composer().SetStatus(func() schema.StatusSnapshot {
		connected := mgr.Count() > 0
		sessions := len(mem.ConversationIDs())
		jobs := sched.CountEnabled()
		snap := schema.StatusSnapshot{
			Identity:      "seneschal v" + version,
			Connected:     &connected,
			Sessions:      &sessions,
			Uptime:        time.Since(start),
			ScheduledJobs: &jobs,
		}
		if hb != nil {
			live := hb.Live()
			snap.HeartbeatLive = &live
		}
		return snap
	})
}

// dispatchInbound routes each inbound message to the engine in its own
// goroutine; per-conversation ordering is the engine's job, so one slow
// conversation never blocks the rest.
func dispatchInbound(ctx context.Context, b *bus.MessageBus, eng *engine.Engine) error {
	for {
		select {
		case msg := <-b.InboundChan():
			go handleInbound(ctx, b, eng, msg)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func handleInbound(ctx context.Context, b *bus.MessageBus, eng *engine.Engine, msg bus.InboundMessage) {
	slog.Info("inbound message", "channel", msg.Channel, "sender", msg.SenderID, "preview", msg.Preview())

	onToken := func(tok string) {
		b.PublishOutbound(bus.NewTokenMessage(msg.Channel, msg.ChatID, tok))
	}

	reply, err := eng.Respond(ctx, msg.ConversationKey(), msg.Content, onToken, msg.SenderID)
	if err != nil {
		slog.Error("turn failed", "conversation", msg.ConversationKey(), "error", err)
		reply = "Something went wrong handling that message. Please try again."
	}
	b.PublishOutbound(bus.NewOutboundMessage(msg.Channel, msg.ChatID, reply))
}
