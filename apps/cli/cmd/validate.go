package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
)

var validateEnvFlag bool

var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Validate project files against the project schema",
	Long: `Validate project files without executing them.

Examples:
  hitrun validate api.json
  hitrun validate api.yaml users.yaml
  hitrun validate --environment staging.env.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

func init() {
	validateCmd.Flags().BoolVar(&validateEnvFlag, "environment", false, "Validate standalone environment files instead of projects")
}

func validateCommand(cmd *cobra.Command, args []string) error {
	hasErrors := false
	for _, file := range args {
		var err error
		if validateEnvFlag {
			_, err = model.LoadEnvironment(file)
		} else {
			_, err = model.LoadProject(file)
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s: %v\n", file, err)
			hasErrors = true
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s\n", file)
		}
	}

	if hasErrors {
		return withCode(ExitParseError, fmt.Errorf("validation failed"))
	}

	return nil
}
