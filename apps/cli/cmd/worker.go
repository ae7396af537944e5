package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitrun/packages/parallel"
)

// workerCmd is started by "run --parallel". It speaks the worker protocol
// on stdin and stdout and logs to stderr.
var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Run as a parallel worker",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		l := logger.With().Str("worker", os.Getenv("HITRUN_WORKER_ID")).Logger()
		return parallel.ServeWorker(cmd.Context(), os.Stdin, os.Stdout, parallel.WithWorkerLogger(l))
	},
}
