// Package input acquires experiment-result tables. It reads CSV from a
// local file, a local directory of CSV shards, or a gs:// object, and
// hands the parsed header and rows to the aggregation pipeline.
package input

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/real-tron/pretty-plots/aggregate"
)

// Table is a parsed CSV table: one header row plus data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// Load reads a single CSV table. Paths starting with gs:// are fetched
// from GCS using opts; anything else is opened as a local file.
func Load(ctx context.Context, path string, opts *GCSOptions) (*Table, error) {
	if strings.HasPrefix(path, "gs://") {
		return loadGCS(ctx, path, opts)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("while opening %s: %w", path, err)
	}
	defer file.Close()

	table, err := parse(file)
	if err != nil {
		return nil, fmt.Errorf("while parsing %s: %w", path, err)
	}
	return table, nil
}

// LoadDir merges every *.csv file under dir into one table. Files are
// parsed in parallel by up to workers goroutines and merged in path order,
// so the result is deterministic. All files must share the same header.
func LoadDir(ctx context.Context, dir string, workers int) (*Table, error) {
	if workers <= 0 {
		workers = 1
	}

	var paths []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".csv" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("while walking %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no csv files found under %s", dir)
	}
	sort.Strings(paths)

	tables := make([]*Table, len(paths))
	var eg errgroup.Group
	eg.SetLimit(workers)
	for i, path := range paths {
		i, path := i, path
		eg.Go(func() error {
			table, err := Load(ctx, path, nil)
			if err != nil {
				return err
			}
			tables[i] = table
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	merged := &Table{Header: tables[0].Header}
	for i, t := range tables {
		if !equalHeaders(t.Header, merged.Header) {
			return nil, fmt.Errorf("header of %s does not match %s: %v vs %v",
				paths[i], paths[0], t.Header, merged.Header)
		}
		merged.Rows = append(merged.Rows, t.Rows...)
	}
	return merged, nil
}

func equalHeaders(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if strings.TrimSpace(a[i]) != strings.TrimSpace(b[i]) {
			return false
		}
	}
	return true
}

func parse(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	// Hand-merged result files occasionally have ragged rows; the
	// aggregator warns on those per row instead of the whole read failing.
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, aggregate.ErrEmptyInput
	}
	if err != nil {
		return nil, fmt.Errorf("while reading header: %w", err)
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("while reading rows: %w", err)
		}
		rows = append(rows, record)
	}
	return &Table{Header: header, Rows: rows}, nil
}
