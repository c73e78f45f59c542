package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/padel.report/internal/padel/storage/sqlite"
)

type runsOptions struct {
	db     string
	json   bool
	delete string
}

func newRunsCmd() *cobra.Command {
	var o runsOptions
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List or delete stored analyses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := sqlite.Open(o.db)
			if err != nil {
				return err
			}
			defer db.Close()

			if o.delete != "" {
				if err := db.DeleteRun(cmd.Context(), o.delete); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted run %s\n", o.delete)
				return nil
			}

			runs, err := db.ListRuns(cmd.Context())
			if err != nil {
				return err
			}
			if o.json {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tCREATED\tSOURCE\tFRAMES\tRALLIES\tTOUCHES")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n",
					r.RunID, r.CreatedAt.Format(time.RFC3339), r.Source, r.FramesProcessed, r.Rallies, r.Touches)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&o.db, "db", "", "SQLite database")
	cmd.Flags().BoolVar(&o.json, "json", false, "Print runs as JSON")
	cmd.Flags().StringVar(&o.delete, "delete", "", "Delete the run with this id")
	cmd.MarkFlagRequired("db")
	return cmd
}
