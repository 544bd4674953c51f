package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/mentor-hub/mentor-hub/internal/application/query"
	"github.com/mentor-hub/mentor-hub/internal/domain/usage"
	"github.com/mentor-hub/mentor-hub/internal/infrastructure/scheduler/jobs"
	"github.com/mentor-hub/mentor-hub/pkg/timeutil"
)

var usagePeriod string

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show message counts per student for a month",
	Long: `Show message counts per student for a month, highest first.

Examples:
  mentorctl usage                    # current month
  mentorctl usage --period 2026-09`,
	Args: cobra.NoArgs,
	RunE: runUsage,
}

func init() {
	usageCmd.Flags().StringVar(&usagePeriod, "period", "", "Month as YYYY-MM (default: current month)")
}

func runUsage(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer e.Close()

	reader := query.NewContentReader(e.stores.Programs, e.stores.Prompts, e.stores.Prompts, e.stores.Usage, timeutil.SystemClock())
	period, records, err := reader.Usage(cmd.Context(), usagePeriod)
	if err != nil {
		return err
	}
	return printUsage(cmd.OutOrStdout(), period, records, e.cfg.Quota.MonthlyLimit, e.zone)
}

func printUsage(out io.Writer, period string, records []usage.Record, limit int64, zone *time.Location) error {
	st := jobs.Summarize(records, limit)
	fmt.Fprintf(out, "period %s: %d students, %d messages, limit %d\n\n", period, st.Students, st.Messages, limit)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tCOUNT\tLAST MESSAGE")
	for _, r := range records {
		marker := ""
		if r.Count >= limit {
			marker = " *"
		}
		fmt.Fprintf(w, "%s\t%d%s\t%s\n", r.Email, r.Count, marker, timeutil.FormatFrenchLong(r.UpdatedAt, zone))
	}
	return w.Flush()
}

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key KEY",
	Short: "Print the bcrypt hash of an admin API key for ADMIN_API_KEY_HASHES",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args[0]) < 16 {
			return fmt.Errorf("admin keys must be at least 16 characters")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(hash))
		return nil
	},
}
