package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
)

var listKeysFlag bool

var listCmd = &cobra.Command{
	Use:   "list <project>",
	Short: "List the folders, requests and environments of a project",
	Long: `List the tree of a project file.

Examples:
  hitrun list api.json
  hitrun list api.yaml --keys`,
	Args: cobra.ExactArgs(1),
	RunE: listCommand,
}

func init() {
	listCmd.Flags().BoolVar(&listKeysFlag, "keys", false, "Show document keys")
}

func listCommand(cmd *cobra.Command, args []string) error {
	project, err := model.LoadProject(args[0])
	if err != nil {
		return withCode(ExitParseError, err)
	}

	out := cmd.OutOrStdout()
	name := project.Info.Name
	if name == "" {
		name = args[0]
	}
	fmt.Fprintf(out, "%s%s\n", name, keySuffix(project.Key))
	listEnvironments(out, project.Environments, 1)
	listItems(out, project.Items, 1)
	return nil
}

func listItems(out io.Writer, items []*model.Item, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, item := range items {
		switch {
		case item.Folder != nil:
			fmt.Fprintf(out, "%s%s/%s\n", indent, item.Folder.Info.Name, keySuffix(item.Folder.Key))
			listEnvironments(out, item.Folder.Environments, depth+1)
			listItems(out, item.Folder.Items, depth+1)
		case item.Request != nil:
			req := item.Request
			line := fmt.Sprintf("%s- %s %s", indent, strings.ToUpper(req.Method), req.Name())
			if !req.IsEnabled() {
				line += " (disabled)"
			}
			fmt.Fprintf(out, "%s%s\n", line, keySuffix(req.Key))
		}
	}
}

func listEnvironments(out io.Writer, envs []*model.Environment, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, e := range envs {
		extra := ""
		if e.Encapsulated {
			extra = " (encapsulated)"
		}
		fmt.Fprintf(out, "%s@ %s%s%s\n", indent, e.Info.Name, extra, keySuffix(e.Key))
	}
}

func keySuffix(key string) string {
	if !listKeysFlag || key == "" {
		return ""
	}
	return " [" + key + "]"
}
