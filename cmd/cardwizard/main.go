package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"character-card-wizard/internal/app"
	"character-card-wizard/internal/collector"
	"character-card-wizard/internal/config"
	"character-card-wizard/internal/export"
	"character-card-wizard/internal/logger"
	"character-card-wizard/internal/poller"
	"character-card-wizard/internal/remote"
	"character-card-wizard/internal/telemetry"
	"character-card-wizard/internal/ui"
)

func main() {
	draft := flag.String("draft", "", "YAML draft that pre-fills the form")
	flag.Parse()

	if err := run(config.Load(), *draft); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// run wires the client and releases everything it opened before returning.
func run(cfg config.Config, draft string) error {
	logFile, err := logger.OpenFile(cfg.LogFile)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer logFile.Close()
	lg := logger.New(logger.Config{Level: logger.ParseLevel(cfg.LogLevel), Format: cfg.LogFormat, Output: logFile})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	exporter, err := export.NewFromConfig(ctx, cfg, lg)
	if err != nil {
		return fmt.Errorf("init exporter: %w", err)
	}

	client := remote.New(cfg.RemoteBaseURL, cfg.RequestTimeout)
	ctrl := app.New(ctx, client, exporter, app.Options{
		Poll: poller.Options{
			Interval:       cfg.PollInterval,
			MaxDuration:    cfg.PollMaxDuration,
			BackoffInitial: cfg.PollBackoffInitial,
			BackoffMax:     cfg.PollBackoffMax,
		},
		SavedFlash:     cfg.SavedFlash,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, lg)
	defer ctrl.Close()

	if draft != "" {
		form, err := collector.LoadDraft(draft)
		if err != nil {
			return fmt.Errorf("load draft: %w", err)
		}
		ctrl.SetForm(form)
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: telemetry.Router()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				lg.Error("metrics server stopped", "err", err)
			}
		}()
		defer srv.Close()
	}

	lg.Info("cardwizard started", "remote", cfg.RemoteBaseURL, "poll_interval", cfg.PollInterval, "export_dir", cfg.ExportDir, "s3_bucket", cfg.ExportS3Bucket)

	model := ui.New(ctx, ctrl, ui.Options{MaxUploadBytes: cfg.MaxUploadBytes, Logger: lg})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	ctrl.SetNotifier(ui.Bridge(p))

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		lg.Error("program exited", "err", err)
		return err
	}
	lg.Info("cardwizard stopped")
	return nil
}
