// Package aggregate classifies experiment-result rows into loss-rate
// conditions and averages a metric per (group, condition) cell. It is the
// core of the packet-loss comparison charts: raw CSV rows go in, a table of
// mean-or-missing cells comes out, and the chart renderer consumes that
// table without ever seeing the raw data.
package aggregate

import (
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Schema names the three required columns and, optionally, fixed positions
// to fall back to when a name is absent from the header. The fallback is
// opt-in: without it a missing name is a fatal SchemaError, and every
// fallback use is logged so schema drift never corrupts output silently.
type Schema struct {
	GroupColumn  string
	LossColumn   string
	MetricColumn string

	Fallback *FallbackPositions
}

// FallbackPositions are 0-based column indices used for columns whose name
// could not be found in the header.
type FallbackPositions struct {
	Group  int
	Loss   int
	Metric int
}

// Config assembles an Aggregator. Groups fixes the set (and output order)
// of group keys under study; rows with other group keys are skipped. Bands
// define the conditions; their order becomes the condition order of the
// result.
type Config struct {
	Schema Schema
	Bands  []Band
	Groups []string

	// Logger receives fallback, parse-warning and missing-cell
	// diagnostics. Defaults to the logrus standard logger.
	Logger *log.Logger
}

// Aggregator ingests raw rows and produces per-(group, condition) means.
// It holds no state between runs; Run is pure apart from log emission.
type Aggregator struct {
	schema     Schema
	classifier *Classifier
	groups     []string
	groupSet   map[string]struct{}
	log        *log.Logger
}

// New validates cfg and returns an Aggregator.
func New(cfg Config) (*Aggregator, error) {
	if cfg.Schema.GroupColumn == "" || cfg.Schema.LossColumn == "" || cfg.Schema.MetricColumn == "" {
		return nil, fmt.Errorf("schema must name group, loss and metric columns")
	}
	if len(cfg.Groups) == 0 {
		return nil, fmt.Errorf("no groups of interest configured")
	}
	classifier, err := NewClassifier(cfg.Bands...)
	if err != nil {
		return nil, fmt.Errorf("while building classifier: %w", err)
	}

	groupSet := make(map[string]struct{}, len(cfg.Groups))
	for _, g := range cfg.Groups {
		groupSet[g] = struct{}{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	return &Aggregator{
		schema:     cfg.Schema,
		classifier: classifier,
		groups:     cfg.Groups,
		groupSet:   groupSet,
		log:        logger,
	}, nil
}

// Key identifies one aggregate cell.
type Key struct {
	Group     string
	Condition string
}

// Cell is the mean of all metric values sharing a key. Count is always
// at least 1; a key with no contributing rows has no Cell at all.
type Cell struct {
	Mean  float64
	Count int
}

// Result is the outcome of one aggregation run. Groups are in caller
// order, Conditions in band order. Cells with zero contributing rows are
// listed in MissingCells and never reported as 0.
type Result struct {
	Groups     []string
	Conditions []string

	MissingCells []Key
	Warnings     []ParseWarning

	RowsTotal    int // data rows seen
	RowsIngested int // rows that contributed to a cell
	RowsSkipped  int // rows outside the groups of interest or every band

	cells map[Key]Cell
}

// Value returns the mean for (group, condition), or false when the cell
// has no data.
func (r *Result) Value(group, condition string) (float64, bool) {
	c, ok := r.cells[Key{Group: group, Condition: condition}]
	if !ok {
		return 0, false
	}
	return c.Mean, true
}

// CellFor returns the full cell for (group, condition).
func (r *Result) CellFor(group, condition string) (Cell, bool) {
	c, ok := r.cells[Key{Group: group, Condition: condition}]
	return c, ok
}

// AllMissing reports whether no cell of any group received data. Callers
// typically refuse to render a chart in that case.
func (r *Result) AllMissing() bool {
	return len(r.cells) == 0
}

// Online accumulator per cell. Keeping {sum, count} instead of the value
// lists bounds memory and makes the missing-vs-zero distinction explicit.
type accumulator struct {
	sum   float64
	count int
}

type columns struct {
	group, loss, metric int
}

func (a *Aggregator) resolveColumns(header []string) (columns, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}

	var missing []string
	lookup := func(name string) (int, bool) {
		i, ok := index[name]
		if !ok {
			missing = append(missing, name)
		}
		return i, ok
	}

	var cols columns
	var haveGroup, haveLoss, haveMetric bool
	cols.group, haveGroup = lookup(a.schema.GroupColumn)
	cols.loss, haveLoss = lookup(a.schema.LossColumn)
	cols.metric, haveMetric = lookup(a.schema.MetricColumn)
	if len(missing) == 0 {
		return cols, nil
	}

	fb := a.schema.Fallback
	if fb == nil {
		return columns{}, &SchemaError{Missing: missing, Header: header}
	}
	fallbackTo := func(name string, pos int) int {
		a.log.Warnf("column %q not found in header, falling back to fixed position %d", name, pos)
		return pos
	}
	if !haveGroup {
		cols.group = fallbackTo(a.schema.GroupColumn, fb.Group)
	}
	if !haveLoss {
		cols.loss = fallbackTo(a.schema.LossColumn, fb.Loss)
	}
	if !haveMetric {
		cols.metric = fallbackTo(a.schema.MetricColumn, fb.Metric)
	}
	return cols, nil
}

// cleanField strips whitespace and stray quotes, which show up in
// hand-merged result CSVs.
func cleanField(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}

// Run makes a single pass over the data rows and aggregates the metric per
// (group, condition). Malformed rows are skipped with a ParseWarning; rows
// outside the groups of interest or outside every band are dropped
// silently. The input is never mutated and repeated runs on the same input
// yield identical results.
func (a *Aggregator) Run(header []string, rows [][]string) (*Result, error) {
	if len(header) == 0 {
		return nil, ErrEmptyInput
	}
	cols, err := a.resolveColumns(header)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Groups:     a.groups,
		Conditions: a.classifier.Labels(),
		cells:      make(map[Key]Cell),
	}
	acc := make(map[Key]*accumulator)

	warn := func(row int, rec []string, reason string) {
		w := ParseWarning{Row: row, Record: rec, Reason: reason}
		res.Warnings = append(res.Warnings, w)
		a.log.Warnf("skipping %s", w)
	}

	maxCol := cols.group
	if cols.loss > maxCol {
		maxCol = cols.loss
	}
	if cols.metric > maxCol {
		maxCol = cols.metric
	}

	for i, rec := range rows {
		rowNum := i + 1
		if len(rec) == 0 {
			continue
		}
		res.RowsTotal++

		if len(rec) <= maxCol {
			warn(rowNum, rec, fmt.Sprintf("not enough columns (%d, need %d)", len(rec), maxCol+1))
			continue
		}

		group := cleanField(rec[cols.group])
		if _, ok := a.groupSet[group]; !ok {
			res.RowsSkipped++
			continue
		}

		loss, err := strconv.ParseFloat(cleanField(rec[cols.loss]), 64)
		if err != nil {
			warn(rowNum, rec, fmt.Sprintf("bad loss fraction %q", rec[cols.loss]))
			continue
		}
		metric, err := strconv.ParseFloat(cleanField(rec[cols.metric]), 64)
		if err != nil {
			warn(rowNum, rec, fmt.Sprintf("bad metric value %q", rec[cols.metric]))
			continue
		}

		condition, ok := a.classifier.Classify(loss)
		if !ok {
			res.RowsSkipped++
			continue
		}

		key := Key{Group: group, Condition: condition}
		cell := acc[key]
		if cell == nil {
			cell = &accumulator{}
			acc[key] = cell
		}
		cell.sum += metric
		cell.count++
		res.RowsIngested++
	}

	for _, group := range a.groups {
		for _, condition := range res.Conditions {
			key := Key{Group: group, Condition: condition}
			cell, ok := acc[key]
			if !ok {
				res.MissingCells = append(res.MissingCells, key)
				a.log.Infof("no data for group %q under condition %q", group, condition)
				continue
			}
			res.cells[key] = Cell{Mean: cell.sum / float64(cell.count), Count: cell.count}
		}
	}

	return res, nil
}
