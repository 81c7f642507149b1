package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papapumpkin/tptmodel/internal/ingest"
	"github.com/papapumpkin/tptmodel/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:   "watch <file.toml>",
	Short: "Import a requirement document and re-import it on every change",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().Duration("debounce", 200*time.Millisecond, "quiet period before a change is re-imported")
	_ = viper.BindPFlag("watch_debounce", watchCmd.Flags().Lookup("debounce"))
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	path := args[0]
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	printer := ui.New(cmd.OutOrStdout())
	doc, err := ingest.Load(path)
	if err != nil {
		return err
	}
	rep, err := ingest.Apply(ctx, s.project, doc, path)
	if err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}
	printer.ImportReport(rep)

	w, err := ingest.NewWatcher(path, s.project,
		ingest.WithDebounce(s.cfg.WatchDebounce),
		ingest.WithLogger(s.logger))
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()
	s.logger.Info("watching", "path", w.Path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case res, ok := <-w.Results:
			if !ok {
				return nil
			}
			printer.WatchResult(res)
		}
	}
}
