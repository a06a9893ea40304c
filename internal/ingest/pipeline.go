package ingest

import (
	"bytes"
	"context"
	"io"

	"kpisync/internal/observability"
	apperrors "kpisync/pkg/errors"
)

// Loader replaces a warehouse table with CSV rows.
type Loader interface {
	LoadCSV(ctx context.Context, dataset, table string, r io.Reader) (int64, error)
}

// Pipeline downloads the dataset archive and loads its CSV into the warehouse.
type Pipeline struct {
	Downloader *Downloader
	Loader     Loader
	Logger     *observability.Logger
}

// Result summarizes one ingestion.
type Result struct {
	Source  string
	Parsed  int
	Loaded  int64
	Dataset string
	Table   string
}

// Run fetches url, extracts the CSV and loads it into dataset.table with
// write-truncate semantics.
func (p *Pipeline) Run(ctx context.Context, url, dataset, table string) (*Result, error) {
	logger := p.Logger
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	archive, err := p.Downloader.Download(ctx, url)
	if err != nil {
		return nil, err
	}

	source, data, err := ExtractCSV(archive)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeFileCorrupted, "failed to extract dataset").
			WithContext("url", url)
	}
	logger.WithField("source", source).Info("extracted dataset")

	var buf bytes.Buffer
	parsed, err := Transform(bytes.NewReader(data), &buf)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeFileCorrupted, "failed to parse dataset").
			WithContext("source", source)
	}

	loaded, err := p.Loader.LoadCSV(ctx, dataset, table, &buf)
	if err != nil {
		return nil, err
	}

	logger.InfoWithFields("dataset loaded", map[string]interface{}{
		"dataset": dataset,
		"table":   table,
		"parsed":  parsed,
		"loaded":  loaded,
	})
	return &Result{Source: source, Parsed: parsed, Loaded: loaded, Dataset: dataset, Table: table}, nil
}
