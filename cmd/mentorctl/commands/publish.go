package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mentor-hub/mentor-hub/internal/application/command"
	"github.com/mentor-hub/mentor-hub/internal/domain/syllabus"
	"github.com/mentor-hub/mentor-hub/pkg/timeutil"
)

var publishCmd = &cobra.Command{
	Use:   "publish PROGRAM",
	Short: "Publish a program and print its public token",
	Long: `Publish a program and print its public syllabus token.

Publishing an already published program keeps its token.`,
	Args: cobra.ExactArgs(1),
	RunE: publishAction(command.ActionPublish),
}

var unpublishCmd = &cobra.Command{
	Use:   "unpublish PROGRAM",
	Short: "Withdraw a program from public access",
	Args:  cobra.ExactArgs(1),
	RunE:  publishAction(command.ActionUnpublish),
}

var regenerateCmd = &cobra.Command{
	Use:   "regenerate PROGRAM",
	Short: "Replace the public token of a published program",
	Long: `Replace the public token of a published program.

The previous token stops working immediately and is never reissued.`,
	Args: cobra.ExactArgs(1),
	RunE: publishAction(command.ActionRegenerate),
}

func publishAction(action command.PublishAction) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer e.Close()

		publisher := syllabus.NewPublisher(e.stores.Programs, timeutil.SystemClock())
		res, err := command.NewPublishProgramHandler(publisher, e.log).Handle(cmd.Context(), command.PublishProgramCommand{
			ProgramKey: args[0],
			Action:     action,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if !res.Published {
			fmt.Fprintf(out, "%s unpublished\n", args[0])
			return nil
		}
		fmt.Fprintf(out, "%s published since %s\ntoken: %s\n",
			args[0], res.PublishedAt.Format(time.RFC3339), res.Token)
		return nil
	}
}
