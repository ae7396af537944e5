package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitrun/packages/cookies"
)

var cookiesCmd = &cobra.Command{
	Use:   "cookies",
	Short: "Inspect a persisted cookie jar",
	Long: `Inspect and edit the SQLite cookie jar written by "run --cookie-jar".

Examples:
  hitrun cookies list cookies.db
  hitrun cookies list cookies.db https://api.example.com/v1
  hitrun cookies delete cookies.db https://api.example.com/ session`,
}

var cookiesListCmd = &cobra.Command{
	Use:   "list <jar> [url]",
	Short: "List stored cookies, optionally only those sent to url",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  cookiesListCommand,
}

var cookiesDeleteCmd = &cobra.Command{
	Use:   "delete <jar> <url> [name]",
	Short: "Delete the cookies matching url, optionally by name",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  cookiesDeleteCommand,
}

func init() {
	cookiesCmd.AddCommand(cookiesListCmd)
	cookiesCmd.AddCommand(cookiesDeleteCmd)
}

func cookiesListCommand(cmd *cobra.Command, args []string) error {
	jar, err := cookies.OpenSQLiteJar(cmd.Context(), args[0])
	if err != nil {
		return withCode(ExitConfigError, err)
	}
	defer jar.Close()

	var list []*cookies.Cookie
	if len(args) == 2 {
		if list, err = jar.ListCookies(cmd.Context(), args[1]); err != nil {
			return withCode(ExitUsageError, err)
		}
	} else {
		list = jar.Cookies()
		sort.Slice(list, func(i, j int) bool {
			if list[i].Domain != list[j].Domain {
				return list[i].Domain < list[j].Domain
			}
			return list[i].Key() < list[j].Key()
		})
	}

	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No cookies")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVALUE\tDOMAIN\tPATH\tEXPIRES\tFLAGS")
	for _, c := range list {
		expires := "session"
		if c.ExpirationDate != nil {
			expires = c.ExpirationDate.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", c.Name, formatCookieValue(c.Value), c.Domain, c.Path, expires, cookieFlags(c))
	}
	return w.Flush()
}

func formatCookieValue(v string) string {
	if len(v) > 40 {
		return v[:40] + "..."
	}
	return v
}

func cookieFlags(c *cookies.Cookie) string {
	var flags []byte
	if c.HostOnly {
		flags = append(flags, 'H')
	}
	if c.Secure {
		flags = append(flags, 'S')
	}
	if c.HTTPOnly {
		flags = append(flags, 'X')
	}
	if len(flags) == 0 {
		return "-"
	}
	return string(flags)
}

func cookiesDeleteCommand(cmd *cobra.Command, args []string) error {
	jar, err := cookies.OpenSQLiteJar(cmd.Context(), args[0])
	if err != nil {
		return withCode(ExitConfigError, err)
	}
	defer jar.Close()

	name := ""
	if len(args) == 3 {
		name = args[2]
	}
	changes, err := jar.DeleteCookies(cmd.Context(), args[1], name)
	if err != nil {
		return withCode(ExitUsageError, err)
	}
	for _, c := range changes {
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted: %s (%s%s)\n", c.Cookie.Name, c.Cookie.Domain, c.Cookie.Path)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d cookie(s) deleted\n", len(changes))
	return nil
}
