package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seneschal/seneschal/internal/config"
	"github.com/seneschal/seneschal/internal/container"
)

var capabilityCmd = &cobra.Command{
	Use:   "capability",
	Short: "Inspect and toggle tools and agents",
}

func init() {
	capabilityCmd.AddCommand(capabilityListCmd)
	capabilityCmd.AddCommand(capabilityToggleCmd)
}

var capabilityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered capabilities",
	RunE: func(_ *cobra.Command, _ []string) error {
		c, err := buildContainer()
		if err != nil {
			return err
		}
		defer c.Close()

		reg := c.Registry()
		all := reg.ListAll()
		if len(all) == 0 {
			fmt.Println("No capabilities registered.")
			return nil
		}

		fmt.Printf("%-18s %-7s %-9s %s\n", "Name", "Kind", "State", "Description")
		fmt.Println(strings.Repeat("-", 80))
		for _, entry := range all {
			def := entry.Definition()
			kind := "tool"
			if reg.IsAgent(def.Name) {
				kind = "agent"
			}
			state := "enabled"
			if !entry.Enabled() {
				state = "disabled"
			}
			fmt.Printf("%-18s %-7s %-9s %s\n", def.Name, kind, state, truncStr(def.Description, 45))
		}
		return nil
	},
}

var capabilityToggleCmd = &cobra.Command{
	Use:   "toggle <name>",
	Short: "Flip a capability's enabled state (persists across restarts)",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		c, err := buildContainer()
		if err != nil {
			return err
		}
		defer c.Close()

		enabled, found := c.Registry().Toggle(args[0])
		if !found {
			fmt.Printf("No capability named %q\n", args[0])
			return nil
		}
		state := "disabled"
		if enabled {
			state = "enabled"
		}
		fmt.Printf("✓ %s is now %s\n", args[0], state)
		return nil
	},
}

// buildContainer loads config and wires the service container; shared by the
// one-shot management commands.
func buildContainer() (*container.Container, error) {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return container.New(cfg)
}
