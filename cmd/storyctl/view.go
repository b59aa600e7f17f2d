package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"plotline/internal/domain/models/story"
	"plotline/internal/draft"
)

var showText bool

var pathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the active branch path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, w *workspace) error {
			out := cmd.OutOrStdout()
			if showText {
				fmt.Fprintln(out, w.session.Text())
				return nil
			}
			printChunks(out, w.session.Chunks())
			return nil
		})
	},
}

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "List every snippet that has children",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWorkspace(cmd.Context())
		if err != nil {
			return err
		}
		defer w.journal.Close()

		tree, err := w.client.GetTree(cmd.Context(), cfg.Story)
		if err != nil {
			return err
		}
		printTree(cmd.OutOrStdout(), tree)
		return nil
	},
}

func init() {
	pathCmd.Flags().BoolVar(&showText, "text", false, "print the joined text only")
	rootCmd.AddCommand(pathCmd, treeCmd)
}

func printChunks(out io.Writer, chunks []draft.Chunk) {
	if len(chunks) == 0 {
		fmt.Fprintln(out, "(empty)")
		return
	}
	for i, c := range chunks {
		fmt.Fprintf(out, "%2d  %-36s  %-4s  %s\n", i+1, c.ID, c.Author, preview(c.Text, 60))
	}
}

func printTree(out io.Writer, tree []story.TreeEntry) {
	if len(tree) == 0 {
		fmt.Fprintln(out, "(no branching points)")
		return
	}
	for _, entry := range tree {
		fmt.Fprintf(out, "%s  %s\n", entry.Parent.ID, preview(entry.Parent.Content, 60))
		for _, child := range entry.Children {
			marker := " "
			if child.Active {
				marker = "*"
			}
			fmt.Fprintf(out, "  %s %s  %-4s  %s\n", marker, child.ID, child.Kind, preview(child.Content, 56))
		}
	}
}

func preview(text string, width int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= width {
		return text
	}
	return string(runes[:width-3]) + "..."
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models the server can generate with",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWorkspace(cmd.Context())
		if err != nil {
			return err
		}
		defer w.journal.Close()

		list, err := w.client.ListModels(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, m := range list.Models {
			marker := " "
			if m.ID == list.DefaultModel {
				marker = "*"
			}
			fmt.Fprintf(tw, "%s %s\t%s\t%s\n", marker, m.ID, m.Provider, m.DisplayName)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
