package server

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"example.com/dctgate/internal/config"
	"example.com/dctgate/internal/dct2000"
)

// Options configures server creation.
type Options struct {
	StorageDir  string
	Concurrency int
	// MaxUploadBytes bounds a single uploaded trace. Zero means no limit.
	MaxUploadBytes int64
	ReaderOptions  []dct2000.Option
	// EditLogPath receives one JSON line per retimed record. Empty
	// disables the audit log.
	EditLogPath string
	SnapLen     int
	// ExportEncap, when set, is used by /export instead of picking the
	// dominant encapsulation of each trace.
	ExportEncap dct2000.Encapsulation
}

// OptionsFromConfig maps a loaded daemon configuration onto server options.
func OptionsFromConfig(cfg config.Config) (Options, error) {
	readerOpts, err := cfg.ReaderOptions()
	if err != nil {
		return Options{}, err
	}
	opts := Options{
		StorageDir:     cfg.StorageDir,
		Concurrency:    cfg.Concurrency,
		MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
		ReaderOptions:  readerOpts,
		SnapLen:        cfg.Export.SnapLen,
	}
	if strings.TrimSpace(cfg.StorageDir) != "" {
		opts.EditLogPath = filepath.Join(cfg.StorageDir, "edits.jsonl")
	}
	if name := strings.TrimSpace(cfg.Export.Encapsulation); name != "" {
		encap, err := parseExportEncap(name)
		if err != nil {
			return Options{}, fmt.Errorf("export encapsulation: %w", err)
		}
		opts.ExportEncap = encap
	}
	return opts, nil
}

var errUnknownEncap = errors.New("unknown encapsulation")

func parseExportEncap(name string) (dct2000.Encapsulation, error) {
	encap, ok := dct2000.ParseEncapsulation(name)
	if !ok || encap == dct2000.EncapUnhandled {
		return dct2000.EncapUnhandled, fmt.Errorf("%w %q", errUnknownEncap, name)
	}
	return encap, nil
}
