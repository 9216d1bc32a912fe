// Package loader reads the pre-built index tables from disk.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/soundprediction/graphquery/pkg/table"
	"github.com/soundprediction/graphquery/pkg/types"
)

// Dataset names, matching the parquet file stems the indexing pipeline writes.
const (
	TextUnits        = "text_units"
	Entities         = "entities"
	Relationships    = "relationships"
	Communities      = "communities"
	CommunityReports = "community_reports"
	Covariates       = "covariates"
)

// Required lists the datasets every query needs.
var Required = []string{TextUnits, Entities, Relationships, Communities, CommunityReports}

// ErrMissingDataset is returned when a required table is not on disk.
var ErrMissingDataset = errors.New("required dataset not found")

// Load reads every dataset from dir concurrently.
// Covariates are optional; the other datasets must exist.
func Load(ctx context.Context, dir string, logger *slog.Logger) (*types.Tables, error) {
	if logger == nil {
		logger = slog.Default()
	}

	names := append(append([]string{}, Required...), Covariates)
	loaded := make([]*table.Table, len(names))

	g, gCtx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			path := filepath.Join(dir, name+".parquet")
			t, err := table.ReadParquetFile(path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					if name == Covariates {
						logger.Debug("Optional dataset not found", "name", name, "path", path)
						return nil
					}
					return fmt.Errorf("%w: %s (%s)", ErrMissingDataset, name, path)
				}
				return fmt.Errorf("failed to load %s: %w", name, err)
			}
			logger.Debug("Loaded dataset", "name", name, "rows", t.Len(), "columns", len(t.Columns))
			loaded[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tables := &types.Tables{
		TextUnits:        loaded[0],
		Entities:         loaded[1],
		Relationships:    loaded[2],
		Communities:      loaded[3],
		CommunityReports: loaded[4],
		Covariates:       loaded[5],
	}
	logger.Info("Index loaded",
		"dir", dir,
		"text_units", tables.TextUnits.Len(),
		"entities", tables.Entities.Len(),
		"relationships", tables.Relationships.Len(),
		"communities", tables.Communities.Len(),
		"community_reports", tables.CommunityReports.Len(),
	)
	return tables, nil
}

// Exists reports whether dir holds every required dataset.
func Exists(dir string) bool {
	for _, name := range Required {
		if _, err := os.Stat(filepath.Join(dir, name+".parquet")); err != nil {
			return false
		}
	}
	return true
}
