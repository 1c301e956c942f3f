package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-proctor/internal/config"
	"github.com/teslashibe/go-proctor/pkg/activity"
	"github.com/teslashibe/go-proctor/pkg/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect recorded sessions",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id | file.jsonl>",
	Short: "Print the activity log of a recorded session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		acts, err := loadSession(cmd.Context(), cfg, args[0])
		if err != nil {
			return err
		}
		printActivities(cmd.OutOrStdout(), acts)
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionShowCmd)
}

func loadSession(ctx context.Context, c *config.Config, ref string) ([]activity.Activity, error) {
	if strings.HasSuffix(ref, ".jsonl") {
		_, acts, err := session.ReadFile(ref)
		return acts, err
	}

	switch c.Store.Backend {
	case config.StorePostgres:
		ps, err := session.NewPostgresStore(ctx, c.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		defer ps.Close(context.Background())
		return ps.Activities(ctx, ref)
	default:
		fs, err := session.NewFileStore(c.Store.Dir)
		if err != nil {
			return nil, err
		}
		_, acts, err := session.ReadFile(fs.Path(ref))
		return acts, err
	}
}

func printActivities(out io.Writer, acts []activity.Activity) {
	if len(acts) == 0 {
		fmt.Fprintln(out, "No activities recorded.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TIME\tTYPE\tSEVERITY\tSOURCE\tDESCRIPTION")
	fmt.Fprintln(w, "----\t----\t--------\t------\t-----------")
	for _, a := range acts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			a.Timestamp.Local().Format("15:04:05"), a.Type, a.Severity, a.Source, a.Description)
	}
	w.Flush()
}
