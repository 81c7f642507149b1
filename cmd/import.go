package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/tptmodel/internal/ingest"
	"github.com/papapumpkin/tptmodel/internal/ui"
)

var importCmd = &cobra.Command{
	Use:   "import <file.toml>...",
	Short: "Import requirement documents into a project",
	Long: `Applies each TOML requirement document in order to one project and prints
what was created, updated, deleted or left unchanged.

Requirements of a module a document covers, but no longer lists, are marked
Deleted. With --show the resulting project is printed as well.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().Bool("show", false, "print the project after importing")
	importCmd.Flags().String("format", "text", "output format with --show: text, yaml, json, toml")
	importCmd.Flags().Bool("metrics", false, "print metrics after importing")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	show, _ := cmd.Flags().GetBool("show")
	format, _ := cmd.Flags().GetString("format")
	withMetrics, _ := cmd.Flags().GetBool("metrics")

	s, err := openSession(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	printer := ui.New(cmd.OutOrStdout())
	for _, path := range args {
		doc, err := ingest.Load(path)
		if err != nil {
			return err
		}
		rep, err := ingest.Apply(cmd.Context(), s.project, doc, path)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		printer.ImportReport(rep)
	}

	if show {
		if err := writeProject(cmd.OutOrStdout(), s.project, format); err != nil {
			return err
		}
	}
	if withMetrics {
		return s.metrics.WriteText(cmd.OutOrStdout())
	}
	return nil
}
