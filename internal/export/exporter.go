package export

import (
	"context"
	"fmt"
	"log/slog"

	"character-card-wizard/internal/config"
	"character-card-wizard/internal/models"
	"character-card-wizard/internal/telemetry"
)

// Exporter turns an in-memory final result into files on every configured sink.
type Exporter struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewExporter wraps the given sinks. At least one sink is expected.
func NewExporter(logger *slog.Logger, sinks ...Sink) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{sinks: sinks, logger: logger}
}

// NewFromConfig always writes locally and mirrors to S3 when a bucket is configured.
func NewFromConfig(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Exporter, error) {
	sinks := []Sink{NewLocalSink(cfg.ExportDir)}
	if cfg.ExportS3Bucket != "" {
		s3Sink, err := NewS3Sink(ctx, cfg)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s3Sink)
	}
	return NewExporter(logger, sinks...), nil
}

// Export builds the artifact of the given kind and stores it. Nothing is
// written when the artifact cannot be built.
func (e *Exporter) Export(ctx context.Context, res models.FinalResult, kind Kind) ([]string, error) {
	art, err := Build(res, kind)
	if err != nil {
		telemetry.Exports.WithLabelValues(string(kind), "error").Inc()
		return nil, err
	}
	locations := make([]string, 0, len(e.sinks))
	for _, sink := range e.sinks {
		loc, err := sink.Put(ctx, art.Name, art.Body, art.ContentType)
		if err != nil {
			telemetry.Exports.WithLabelValues(string(kind), "error").Inc()
			return locations, fmt.Errorf("store %s: %w", art.Name, err)
		}
		e.logger.Info("artifact exported", "kind", kind, "location", loc, "bytes", len(art.Body))
		locations = append(locations, loc)
	}
	telemetry.Exports.WithLabelValues(string(kind), "ok").Inc()
	return locations, nil
}
