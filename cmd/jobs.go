package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/seneschal/seneschal/internal/config"
	"github.com/seneschal/seneschal/internal/scheduler"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage scheduled jobs",
}

func init() {
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsAddCmd)
	jobsCmd.AddCommand(jobsRemoveCmd)
	jobsCmd.AddCommand(jobsEnableCmd)
	jobsCmd.AddCommand(jobsRunCmd)
}

// ---- list ------------------------------------------------------------------

var jobsListAll bool

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs",
	RunE: func(_ *cobra.Command, _ []string) error {
		svc := scheduler.NewService(jobsStorePath())
		jobs := svc.Jobs(jobsListAll)
		if len(jobs) == 0 {
			fmt.Println("No scheduled jobs.")
			return nil
		}
		fmt.Printf("%-10s %-20s %-25s %-10s %-20s\n", "ID", "Name", "Schedule", "Status", "Next Run")
		fmt.Println(strings.Repeat("-", 88))
		for _, j := range jobs {
			status := "enabled"
			if !j.Enabled {
				status = "disabled"
			}
			nextRun := ""
			if j.State.NextRunAtMs != nil {
				nextRun = time.UnixMilli(*j.State.NextRunAtMs).Format("2006-01-02 15:04")
			}
			fmt.Printf("%-10s %-20s %-25s %-10s %-20s\n",
				j.ID, truncStr(j.Name, 19), truncStr(formatSchedule(j.Schedule), 24), status, nextRun)
		}
		return nil
	},
}

func init() {
	jobsListCmd.Flags().BoolVarP(&jobsListAll, "all", "a", false, "Include disabled jobs")
}

// ---- add -------------------------------------------------------------------

var (
	jobsAddName    string
	jobsAddPrompt  string
	jobsAddEvery   int
	jobsAddCron    string
	jobsAddTZ      string
	jobsAddAt      string
	jobsAddDeliver bool
	jobsAddTo      string
	jobsAddChannel string
)

var jobsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a scheduled job",
	RunE: func(_ *cobra.Command, _ []string) error {
		if jobsAddTZ != "" && jobsAddCron == "" {
			return fmt.Errorf("--tz can only be used with --cron")
		}

		spec := scheduler.JobSpec{
			Name:    jobsAddName,
			Prompt:  jobsAddPrompt,
			Deliver: jobsAddDeliver,
			Channel: jobsAddChannel,
			To:      jobsAddTo,
		}

		switch {
		case jobsAddEvery > 0:
			spec.Kind = "every"
			spec.EveryMs = int64(jobsAddEvery) * 1000
		case jobsAddCron != "":
			spec.Kind = "cron"
			spec.Expr = jobsAddCron
			spec.TZ = jobsAddTZ
		case jobsAddAt != "":
			dt, err := time.ParseInLocation("2006-01-02T15:04:05", jobsAddAt, time.Local)
			if err != nil {
				dt, err = time.Parse(time.RFC3339, jobsAddAt)
				if err != nil {
					return fmt.Errorf("invalid --at value %q: %w", jobsAddAt, err)
				}
			}
			spec.Kind = "at"
			spec.AtMs = dt.UnixMilli()
			spec.DeleteAfterRun = true
		default:
			return fmt.Errorf("must specify --every, --cron, or --at")
		}

		svc := scheduler.NewService(jobsStorePath())
		job, err := svc.AddJob(spec)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Added job '%s' (%s)\n", job.Name, job.ID)
		return nil
	},
}

func init() {
	jobsAddCmd.Flags().StringVarP(&jobsAddName, "name", "n", "", "Job name (required)")
	jobsAddCmd.Flags().StringVarP(&jobsAddPrompt, "prompt", "p", "", "Prompt for the agent (required)")
	jobsAddCmd.Flags().IntVarP(&jobsAddEvery, "every", "e", 0, "Run every N seconds")
	jobsAddCmd.Flags().StringVarP(&jobsAddCron, "cron", "c", "", "Cron expression (e.g. '0 9 * * *')")
	jobsAddCmd.Flags().StringVar(&jobsAddTZ, "tz", "", "IANA timezone for --cron")
	jobsAddCmd.Flags().StringVar(&jobsAddAt, "at", "", "Run once at ISO datetime")
	jobsAddCmd.Flags().BoolVarP(&jobsAddDeliver, "deliver", "d", false, "Deliver the reply to a channel")
	jobsAddCmd.Flags().StringVar(&jobsAddTo, "to", "", "Recipient ID for delivery")
	jobsAddCmd.Flags().StringVar(&jobsAddChannel, "channel", "", "Channel for delivery")

	_ = jobsAddCmd.MarkFlagRequired("name")
	_ = jobsAddCmd.MarkFlagRequired("prompt")
}

// ---- remove / enable / run ---------------------------------------------------

var jobsRemoveCmd = &cobra.Command{
	Use:   "remove <job-id>",
	Short: "Remove a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		svc := scheduler.NewService(jobsStorePath())
		if svc.Remove(args[0]) {
			fmt.Printf("✓ Removed job %s\n", args[0])
		} else {
			fmt.Printf("Job %s not found\n", args[0])
		}
		return nil
	},
}

var jobsEnableDisable bool

var jobsEnableCmd = &cobra.Command{
	Use:   "enable <job-id>",
	Short: "Enable (or disable) a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		svc := scheduler.NewService(jobsStorePath())
		job, ok := svc.Enable(args[0], !jobsEnableDisable)
		if !ok {
			fmt.Printf("Job %s not found\n", args[0])
			return nil
		}
		action := "enabled"
		if jobsEnableDisable {
			action = "disabled"
		}
		fmt.Printf("✓ Job '%s' %s\n", job.Name, action)
		return nil
	},
}

func init() {
	jobsEnableCmd.Flags().BoolVar(&jobsEnableDisable, "disable", false, "Disable instead of enable")
}

var jobsRunForce bool

var jobsRunCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Manually run a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		c, err := buildContainer()
		if err != nil {
			return err
		}
		defer c.Close()
		eng := c.Engine()

		svc := scheduler.NewService(jobsStorePath())
		svc.SetOnJob(func(ctx context.Context, job scheduler.Job) (string, error) {
			reply, err := eng.Respond(ctx, "job:"+job.ID, job.Payload.Prompt, nil, "")
			if err != nil {
				return "", err
			}
			if reply != "" {
				printReply(reply)
			}
			return reply, nil
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if svc.Run(ctx, args[0], jobsRunForce) {
			fmt.Println("✓ Job executed")
		} else {
			fmt.Printf("Failed to run job %s (not found or disabled; use --force)\n", args[0])
		}
		return nil
	},
}

func init() {
	jobsRunCmd.Flags().BoolVarP(&jobsRunForce, "force", "f", false, "Run even if disabled")
}

// ---- helpers ---------------------------------------------------------------

func jobsStorePath() string {
	return filepath.Join(config.DataDir(), "scheduler", "jobs.json")
}

func formatSchedule(s scheduler.Schedule) string {
	switch s.Kind {
	case "every":
		if s.EveryMs != nil {
			return fmt.Sprintf("every %ds", *s.EveryMs/1000)
		}
	case "cron":
		if s.Expr != nil {
			if s.TZ != nil {
				return *s.Expr + " (" + *s.TZ + ")"
			}
			return *s.Expr
		}
	case "at":
		return "one-time"
	}
	return s.Kind
}

func truncStr(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
