package main

import (
	"context"
	"fmt"
	"time"

	"contrib.go.opencensus.io/exporter/stackdriver"
	log "github.com/sirupsen/logrus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"

	"github.com/real-tron/pretty-plots/aggregate"
)

var (
	rowsIngested  = stats.Int64("rowsIngested", "Rows that contributed to an aggregate cell", "1")
	parseWarnings = stats.Int64("parseWarnings", "Malformed rows skipped during ingestion", "1")
	missingCells  = stats.Int64("missingCells", "Group/condition cells with no data", "1")
)

var sdExporter *stackdriver.Exporter

func registerAggregationViews() {
	views := []*view.View{
		{
			Name:        "rows_ingested",
			Measure:     rowsIngested,
			Description: "Rows that contributed to an aggregate cell",
			Aggregation: view.Sum(),
		},
		{
			Name:        "parse_warnings",
			Measure:     parseWarnings,
			Description: "Malformed rows skipped during ingestion",
			Aggregation: view.Sum(),
		},
		{
			Name:        "missing_cells",
			Measure:     missingCells,
			Description: "Group/condition cells with no data",
			Aggregation: view.Sum(),
		},
	}
	if err := view.Register(views...); err != nil {
		log.Fatalf("Failed to register the aggregation views: %v", err)
	}
}

func recordAggregationStats(ctx context.Context, res *aggregate.Result) {
	if !*fEnableMetricsExport {
		return
	}
	stats.Record(ctx,
		rowsIngested.M(int64(res.RowsIngested)),
		parseWarnings.M(int64(len(res.Warnings))),
		missingCells.M(int64(len(res.MissingCells))),
	)
}

func enableSDExporter(projectID string) (err error) {
	sdExporter, err = stackdriver.NewExporter(stackdriver.Options{
		ProjectID:         projectID,
		MetricPrefix:      "pretty-plots",
		ReportingInterval: 30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("while creating stackdriver exporter: %w", err)
	}

	if err = sdExporter.StartMetricsExporter(); err != nil {
		return fmt.Errorf("start stackdriver exporter: %w", err)
	}

	log.Info("Stack driver agent started successfully!!")
	return nil
}

func closeSDExporter() {
	if sdExporter != nil {
		sdExporter.StopMetricsExporter()
		sdExporter.Flush()
	}
	sdExporter = nil
}
