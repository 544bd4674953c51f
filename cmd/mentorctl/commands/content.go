package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mentor-hub/mentor-hub/internal/application/command"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := openEnv(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer e.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "%s database is up to date\n", e.stores.Driver)
		return nil
	},
}

var seedDryRun bool

var seedCmd = &cobra.Command{
	Use:   "seed FILE",
	Short: "Load programs, prompts and the mentor config from a YAML file",
	Long: `Load programs, prompts and the mentor config from a YAML file.

Entries are upserted: existing programs keep their publish state.

Example:
  mentorctl seed content/programs.yaml
  mentorctl seed --dry-run content/programs.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().BoolVar(&seedDryRun, "dry-run", false, "Parse and validate the file without writing")
}

func runSeed(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	seed, err := command.ParseSeed(f)
	if err != nil {
		return err
	}
	if seedDryRun {
		for i := range seed.Programs {
			if err := seed.Programs[i].Validate(); err != nil {
				return fmt.Errorf("program %q: %w", seed.Programs[i].Key, err)
			}
		}
		for i := range seed.Prompts {
			if err := seed.Prompts[i].Validate(); err != nil {
				return fmt.Errorf("prompt %q: %w", seed.Prompts[i].Key, err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %d programs, %d prompts\n", len(seed.Programs), len(seed.Prompts))
		return nil
	}

	e, err := openEnv(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer e.Close()

	h := command.NewContentHandler(e.stores.Programs, e.stores.Prompts, e.stores.Prompts, e.log)
	rep, err := h.Seed(cmd.Context(), seed)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d programs, %d prompts, mentor config: %t\n", rep.Programs, rep.Prompts, rep.Mentor)
	return nil
}
