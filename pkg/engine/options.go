package engine

import (
	"log/slog"

	"github.com/sanonone/irishnsw/pkg/config"
	"github.com/sanonone/irishnsw/pkg/persistence"
)

// OptionsFromConfig maps the process configuration onto engine options.
func OptionsFromConfig(cfg config.Config, logger *slog.Logger) (Options, error) {
	codec, err := persistence.ParseCodec(cfg.Storage.Codec)
	if err != nil {
		return Options{}, err
	}

	opts := DefaultOptions(cfg.Storage.DataDir)
	opts.SnapshotFile = cfg.Storage.SnapshotFile
	if !cfg.Storage.Journal {
		opts.JournalFile = ""
	}
	opts.Codec = codec
	opts.Index = cfg.HNSW()
	opts.Dim = cfg.IrisDim()
	opts.MaxRotation = cfg.Iris.MaxRotation
	opts.Seed = cfg.Index.Seed
	opts.AutoSaveInterval = cfg.Storage.SaveInterval.Std()
	opts.MetricsName = cfg.Metrics.IndexName
	opts.Logger = logger
	return opts, nil
}
