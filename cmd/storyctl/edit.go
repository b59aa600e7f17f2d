package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"plotline/internal/draft"
)

var appendAsLLM bool

var appendCmd = &cobra.Command{
	Use:   "append <text...|->",
	Short: "Append a snippet to the end of the branch",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := textArg(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		author := draft.AuthorUser
		if appendAsLLM {
			author = draft.AuthorLLM
		}
		return withSession(cmd, func(ctx context.Context, w *workspace) error {
			chunk, err := w.session.Append(ctx, text, author)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), chunk.ID)
			return nil
		})
	},
}

var insertAboveCmd = &cobra.Command{
	Use:   "insert-above <id> <text...|->",
	Short: "Insert a snippet between a snippet and its parent",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInsert(cmd, args, true)
	},
}

var insertBelowCmd = &cobra.Command{
	Use:   "insert-below <id> <text...|->",
	Short: "Insert a snippet between a snippet and its active child",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInsert(cmd, args, false)
	},
}

func runInsert(cmd *cobra.Command, args []string, above bool) error {
	text, err := textArg(cmd.InOrStdin(), args[1:])
	if err != nil {
		return err
	}
	return withSession(cmd, func(ctx context.Context, w *workspace) error {
		insert := w.session.InsertBelow
		if above {
			insert = w.session.InsertAbove
		}
		chunk, err := insert(ctx, args[0], text)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), chunk.ID)
		return nil
	})
}

var editCmd = &cobra.Command{
	Use:   "edit <id> <text...|->",
	Short: "Replace a snippet's content",
	Long: `edit changes the local draft and queues the save. The save is delivered
when the command exits; if the service cannot be reached the update is
written to the journal for 'storyctl sync'.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := textArg(cmd.InOrStdin(), args[1:])
		if err != nil {
			return err
		}
		return withSession(cmd, func(ctx context.Context, w *workspace) error {
			return w.session.Edit(args[0], text)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a snippet, splicing its children onto its parent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, w *workspace) error {
			return w.session.Delete(ctx, args[0])
		})
	},
}

var chooseCmd = &cobra.Command{
	Use:   "choose <parent-id> <child-id>",
	Short: "Make child the active continuation of parent",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, w *workspace) error {
			if err := w.session.ChooseActiveChild(ctx, args[0], args[1]); err != nil {
				return err
			}
			printChunks(cmd.OutOrStdout(), w.session.Chunks())
			return nil
		})
	},
}

func init() {
	appendCmd.Flags().BoolVar(&appendAsLLM, "ai", false, "mark the snippet as model-written")
	rootCmd.AddCommand(appendCmd, insertAboveCmd, insertBelowCmd, editCmd, deleteCmd, chooseCmd)
}
