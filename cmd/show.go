package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/papapumpkin/tptmodel/internal/project"
	"github.com/papapumpkin/tptmodel/internal/ui"
)

var showCmd = &cobra.Command{
	Use:   "show <file.toml>...",
	Short: "Import requirement documents and print the resulting project",
	Long: `Loads the given requirement documents into a fresh project and prints it.
Formats: text (default), yaml, json, toml.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().String("format", "text", "output format: text, yaml, json, toml")
	showCmd.Flags().Bool("metrics", false, "print metrics in the Prometheus text format instead")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	withMetrics, _ := cmd.Flags().GetBool("metrics")
	if err := checkFormat(format); err != nil {
		return err
	}

	s, err := openSession(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := importAll(cmd, s, args); err != nil {
		return err
	}
	if withMetrics {
		return s.metrics.WriteText(cmd.OutOrStdout())
	}
	return writeProject(cmd.OutOrStdout(), s.project, format)
}

func checkFormat(format string) error {
	switch format {
	case "text", "yaml", "json", "toml":
		return nil
	}
	return fmt.Errorf("unknown format %q (want text, yaml, json or toml)", format)
}

// writeProject prints a snapshot of p in the given format.
func writeProject(w io.Writer, p *project.Project, format string) error {
	if err := checkFormat(format); err != nil {
		return err
	}
	v, err := p.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "toml":
		return toml.NewEncoder(w).Encode(v)
	default:
		ui.New(w).ProjectSummary(v)
		return nil
	}
}
