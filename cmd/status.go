package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seneschal/seneschal/internal/config"
	"github.com/seneschal/seneschal/internal/memory"
	"github.com/seneschal/seneschal/internal/scheduler"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show seneschal status",
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfgPath := config.ConfigPath()

	fmt.Printf("%s seneschal Status\n\n", logo)

	_, statErr := os.Stat(cfgPath)
	cfgMark := "✗"
	if statErr == nil {
		cfgMark = "✓"
	}
	fmt.Printf("Config:    %s %s\n", cfgPath, cfgMark)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}

	dataDir := config.DataDir()
	_, dataErr := os.Stat(dataDir)
	dataMark := "✗"
	if dataErr == nil {
		dataMark = "✓"
	}
	fmt.Printf("Data:      %s %s\n", dataDir, dataMark)

	keyMark := "(not set)"
	if cfg.Provider.APIKey != "" {
		keyMark = "✓"
	}
	fmt.Printf("Provider:  %s %s\n", cfg.Provider.Name, keyMark)
	fmt.Printf("Model:     %s\n\n", cfg.Agent.Model)

	fmt.Printf("%-10s %-8s %s\n", "Channel", "Enabled", "Configuration")
	fmt.Println(strings.Repeat("-", 60))
	fmt.Printf("%-10s %-8s %s\n", "console", "✓", "always on")
	fmt.Printf("%-10s %-8s %s\n", "telegram", yesNo(cfg.Channels.Telegram.Enabled), tokenHint(cfg.Channels.Telegram.Token))
	fmt.Printf("%-10s %-8s %s\n", "slack", yesNo(cfg.Channels.Slack.Enabled), slackHint(cfg.Channels.Slack))
	fmt.Printf("%-10s %-8s %s:%d\n", "gateway", yesNo(cfg.Channels.Gateway.Enabled), cfg.Channels.Gateway.Host, cfg.Channels.Gateway.Port)
	fmt.Println()

	printDataCounts(cfg)
	return nil
}

// printDataCounts summarizes on-disk state: persisted conversations and
// scheduled jobs.
func printDataCounts(cfg *config.Config) {
	mem, err := memory.NewManager(filepath.Join(config.DataDir(), "conversations"), cfg.Agent.MaxHistory)
	if err == nil {
		fmt.Printf("Conversations: %d\n", len(mem.ConversationIDs()))
	}

	sched := scheduler.NewService(jobsStorePath())
	jobs := sched.Jobs(true)
	fmt.Printf("Scheduled jobs: %d (%d enabled)\n", len(jobs), sched.CountEnabled())
}

func slackHint(c config.SlackConfig) string {
	if c.AppToken != "" && c.BotToken != "" {
		return "socket"
	}
	return "(not configured)"
}

func yesNo(b bool) string {
	if b {
		return "✓"
	}
	return "✗"
}

func tokenHint(s string) string {
	if s == "" {
		return "(not configured)"
	}
	if len(s) > 10 {
		return s[:10] + "..."
	}
	return s
}
