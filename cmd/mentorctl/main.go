// Command mentorctl is the operator tool of mentor-hub.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	_ "time/tzdata"

	"github.com/mentor-hub/mentor-hub/cmd/mentorctl/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := commands.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "mentorctl: %v\n", err)
		os.Exit(1)
	}
}
