package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var branchHead string

var branchesCmd = &cobra.Command{
	Use:     "branches",
	Aliases: []string{"branch"},
	Short:   "List and manage branches",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, w *workspace) error {
			branches, err := w.session.Branches(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			current := w.session.Key().Branch
			for _, b := range branches {
				marker := " "
				if b.Name == current {
					marker = "*"
				}
				fmt.Fprintf(tw, "%s %s\t%s\t%s\n", marker, b.Name, b.HeadID, b.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		})
	},
}

var branchCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a branch at --head, or at the end of the current branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, w *workspace) error {
			b, err := w.session.CreateBranch(ctx, args[0], branchHead)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", b.Name, b.HeadID)
			return nil
		})
	},
}

var branchMoveCmd = &cobra.Command{
	Use:   "move <name> <head-id>",
	Short: "Point a branch at another snippet",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, w *workspace) error {
			b, err := w.session.MoveBranch(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", b.Name, b.HeadID)
			return nil
		})
	},
}

var branchDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a branch pointer; snippets are kept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, w *workspace) error {
			return w.session.DeleteBranch(ctx, args[0])
		})
	},
}

var switchCmd = &cobra.Command{
	Use:   "switch <name>",
	Short: "Load another branch and print its path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, w *workspace) error {
			if err := w.session.SwitchBranch(ctx, args[0]); err != nil {
				return err
			}
			printChunks(cmd.OutOrStdout(), w.session.Chunks())
			return nil
		})
	},
}

func init() {
	branchCreateCmd.Flags().StringVar(&branchHead, "head", "", "snippet id for the new branch head")
	branchesCmd.AddCommand(branchCreateCmd, branchMoveCmd, branchDeleteCmd)
	rootCmd.AddCommand(branchesCmd, switchCmd)
}
