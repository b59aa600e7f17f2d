package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var instruction string

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Continue the branch with model-written text",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, w *workspace) error {
			chunk, err := w.session.Generate(ctx, instruction)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n%s\n", chunk.ID, chunk.Text)
			return nil
		})
	},
}

var regenerateCmd = &cobra.Command{
	Use:   "regenerate <id>",
	Short: "Write an alternative for a snippet; the original stays as a sibling",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, w *workspace) error {
			chunk, err := w.session.Regenerate(ctx, args[0], instruction)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n%s\n", chunk.ID, chunk.Text)
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{generateCmd, regenerateCmd} {
		c.Flags().StringVarP(&instruction, "instruction", "i", "", "guidance for the model")
	}
	rootCmd.AddCommand(generateCmd, regenerateCmd)
}
