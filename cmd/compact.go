package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Run one memory-compaction cycle now",
	RunE: func(_ *cobra.Command, _ []string) error {
		c, err := buildContainer()
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		n := c.Engine().CompactPending(ctx, c.Config().Memory.CompactMinQueue)
		if n == 0 {
			fmt.Println("Nothing to compact.")
			return nil
		}
		fmt.Printf("✓ Compacted %d conversation(s)\n", n)
		return nil
	},
}
