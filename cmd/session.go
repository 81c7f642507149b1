package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/tptmodel/internal/attachment"
	"github.com/papapumpkin/tptmodel/internal/config"
	"github.com/papapumpkin/tptmodel/internal/ingest"
	"github.com/papapumpkin/tptmodel/internal/metrics"
	"github.com/papapumpkin/tptmodel/internal/project"
	"github.com/papapumpkin/tptmodel/internal/telemetry"
)

// session is one CLI invocation's project together with the resources it
// owns.
type session struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	project *project.Project

	blobs attachment.Store
	tel   *telemetry.Emitter
}

// openSession builds a project from the loaded configuration. Logs go to
// the command's error stream so they never mix with formatted output.
func openSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	s := &session{
		cfg:     cfg,
		logger:  cfg.NewLogger(cmd.ErrOrStderr()),
		metrics: metrics.New(),
	}

	if cfg.AttachmentsDB != "" {
		store, err := attachment.NewSQLiteStore(ctx, cfg.AttachmentsDB)
		if err != nil {
			return nil, err
		}
		s.blobs = store
	} else {
		s.blobs = attachment.NewMemoryStore()
	}

	if cfg.TelemetryPath != "" {
		tel, err := telemetry.NewEmitter(cfg.TelemetryPath)
		if err != nil {
			_ = s.blobs.Close()
			return nil, err
		}
		s.tel = tel
	}

	p, err := project.New(project.Options{
		Scope:     cfg.Scope,
		Blobs:     s.blobs,
		Telemetry: s.tel,
		Metrics:   s.metrics,
		Logger:    s.logger,
	})
	if err != nil {
		_ = s.tel.Close()
		_ = s.blobs.Close()
		return nil, fmt.Errorf("open project: %w", err)
	}
	s.project = p
	return s, nil
}

// Close disposes the project and closes what the session opened.
func (s *session) Close() error {
	return errors.Join(s.project.Close(), s.tel.Close(), s.blobs.Close())
}

// importAll applies every document in order without printing reports.
func importAll(cmd *cobra.Command, s *session, paths []string) error {
	for _, path := range paths {
		doc, err := ingest.Load(path)
		if err != nil {
			return err
		}
		if _, err := ingest.Apply(cmd.Context(), s.project, doc, path); err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
	}
	return nil
}
