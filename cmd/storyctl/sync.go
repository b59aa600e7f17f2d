package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listOnly bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay journaled updates that could not be delivered",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		w, err := openWorkspace(ctx)
		if err != nil {
			return err
		}
		defer w.journal.Close()

		out := cmd.OutOrStdout()
		if listOnly {
			records, err := w.journal.Pending(ctx)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "journal is empty")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SNIPPET\tATTEMPTS\tRECORDED\tLAST ERROR")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", r.SnippetID, r.Attempts, r.RecordedAt.Local().Format("2006-01-02 15:04:05"), preview(r.LastError, 50))
			}
			return tw.Flush()
		}

		if err := w.client.Health(ctx); err != nil {
			return fmt.Errorf("service unavailable: %w", err)
		}
		result, err := w.journal.Replay(ctx, w.client)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "delivered %d, dropped %d, still pending %d\n", result.Delivered, result.Dropped, result.Failed)
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&listOnly, "list", false, "show journaled updates without sending them")
	rootCmd.AddCommand(syncCmd)
}
