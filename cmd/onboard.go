package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/seneschal/seneschal/internal/config"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize configuration and data directories",
	RunE:  runOnboard,
}

func runOnboard(_ *cobra.Command, _ []string) error {
	cfgPath := config.ConfigPath()

	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Printf("Config already exists at %s\n", cfgPath)
		fmt.Printf("Press Enter to refresh (keep existing values) or Ctrl+C to cancel: ")
		fmt.Scanln()
		existing, loadErr := config.Load(cfgPath)
		if loadErr != nil {
			def := config.DefaultConfig()
			existing = &def
		}
		if err := config.Save(existing, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Config refreshed at %s\n", cfgPath)
	} else {
		cfg := config.DefaultConfig()
		if err := config.Save(&cfg, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Created config at %s\n", cfgPath)
	}

	dataDir := config.DataDir()
	for _, sub := range []string{"conversations", "scheduler"} {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	fmt.Printf("✓ Data directory at %s\n", dataDir)

	writeManifestTemplate(dataDir)

	fmt.Printf("\n%s seneschal is ready!\n\n", logo)
	fmt.Println("Next steps:")
	fmt.Printf("  1. Add your provider API key to %s\n", cfgPath)
	fmt.Printf("  2. Chat: seneschal chat -m \"Hello!\"\n")
	fmt.Printf("  3. Run everything: seneschal serve\n")
	return nil
}

// writeManifestTemplate seeds agents.yaml with one working example agent;
// an existing file is left alone.
func writeManifestTemplate(dataDir string) {
	path := filepath.Join(dataDir, "agents.yaml")
	if _, err := os.Stat(path); err == nil {
		return
	}

	const template = `# Agent capabilities. Each entry becomes a callable agent that runs its own
# completion loop with only the tools listed here ("*" allows all tools,
# omit for none). Agents cannot call other agents.
agents:
  - name: researcher
    description: Reads web pages and reports back a short summary with sources.
    systemPrompt: |
      You are a research assistant. Use web_read to gather information, then
      answer with a concise summary followed by the URLs you used.
    tools:
      - web_read
    maxIterations: 6
`
	if err := os.WriteFile(path, []byte(template), 0o644); err != nil {
		fmt.Printf("  (could not write %s: %v)\n", path, err)
		return
	}
	fmt.Println("  Created agents.yaml (example researcher agent)")
}
