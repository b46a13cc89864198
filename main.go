// Command pretty-plots reads an experiment-result CSV (local file,
// directory of shards, or gs:// object), averages a quality metric per
// group under two packet-loss conditions, and renders a grouped bar chart
// to <output>.png and <output>.pdf.
package main

import (
	"context"
	"flag"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/profiler"
	log "github.com/sirupsen/logrus"

	"github.com/real-tron/pretty-plots/aggregate"
	"github.com/real-tron/pretty-plots/chart"
	"github.com/real-tron/pretty-plots/input"
)

var (
	fInput     = flag.String("input", "", "Input CSV: local path or gs:// URI.")
	fInputDir  = flag.String("input-dir", "", "Directory of CSV shards to merge (local only).")
	fWorkers   = flag.Int("workers", 4, "Number of concurrent workers to parse shards.")
	fGroupCol  = flag.String("group-column", "video", "Header name of the group key column.")
	fLossCol   = flag.String("loss-column", "avg_packet_loss", "Header name of the loss fraction column.")
	fMetricCol = flag.String("metric-column", "lpips", "Header name of the metric column.")
	fGroups    = flag.String("groups", "", "Comma-separated group keys of interest (required).")
	fBand      = flag.String("compare-band", "20", `Comparison loss band: "20" (20% +/- 5%) or "0-5" (0 < loss <= 5%).`)
	fFallback  = flag.String("fallback-positions", "", "Opt-in fixed column positions group,loss,metric used when header lookup fails.")

	fOutput = flag.String("output", "lpips_report", "Output basename; .png and .pdf are written.")
	fTitle  = flag.String("title", "", "Chart title.")
	fXLabel = flag.String("x-label", "Group", "X axis label.")
	fYLabel = flag.String("y-label", "LPIPS", "Y axis label.")

	fUploadBucketPath = flag.String("upload-bucket-path", "", "gs:// prefix to upload the rendered charts to.")
	fClientProtocol   = flag.String("client-protocol", "http", "Network protocol for GCS: http or grpc.")
	fWithReadStall    = flag.Bool("with-read-stall-timeout", true, "Enable read stall timeout on GCS reads.")
	fMinDelay         = flag.Duration("min-delay", 500*time.Millisecond, "Min delay for the read stall timeout.")
	fTargetPercentile = flag.Float64("target-percentile", 0.999, "Target percentile for the read stall timeout.")

	fEnableCloudProfiler = flag.Bool("enable-cloud-profiler", false, "Enable cloud profiler.")
	fEnablePprof         = flag.Bool("enable-pprof", false, "Enable pprof server.")
	fEnableMetricsExport = flag.Bool("enable-metrics-export", false, "Export aggregation counters to Cloud Monitoring.")
	fEnableTraceExport   = flag.Bool("enable-trace-export", false, "Export traces to Cloud Trace.")
	fTraceSampleRate     = flag.Float64("trace-sample-rate", 1.0, "Trace sampling rate.")
	fProjectID           = flag.String("project-id", "", "GCP project; required for profiler/metrics/trace export outside of GCP.")
	fVersion             = flag.String("version", "original", "Version to run profiler with.")

	fDebugLevel = flag.String("d", "info", "Debug level: info, debug.")
)

func parseGroups(s string) []string {
	var groups []string
	for _, g := range strings.Split(s, ",") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}

func parseFallback(s string) (*aggregate.FallbackPositions, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return nil, strconv.ErrSyntax
	}
	var idx [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		idx[i] = n
	}
	return &aggregate.FallbackPositions{Group: idx[0], Loss: idx[1], Metric: idx[2]}, nil
}

// studyBands returns the baseline and comparison bands of a study. The
// 0-5 band starts right above 0, so its baseline is the exact-zero band
// rather than the |x| < 0.01 one, which it would overlap.
func studyBands(name string) ([]aggregate.Band, bool) {
	switch name {
	case "20":
		return []aggregate.Band{aggregate.ZeroLoss, aggregate.TwentyLoss}, true
	case "0-5":
		return []aggregate.Band{aggregate.ZeroLossExact, aggregate.LowLoss}, true
	}
	return nil, false
}

func tableFromResult(res *aggregate.Result, groupLabels []string) chart.Table {
	t := chart.Table{GroupLabels: groupLabels}
	for _, condition := range res.Conditions {
		s := chart.Series{Label: condition + " Packet Loss"}
		for _, group := range res.Groups {
			v, ok := res.Value(group, condition)
			s.Values = append(s.Values, chart.Value{V: v, OK: ok})
		}
		t.Series = append(t.Series, s)
	}
	return t
}

func main() {
	flag.Parse()
	log.SetOutput(os.Stdout)

	switch *fDebugLevel {
	case "info":
		log.SetLevel(log.InfoLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
		log.Debug("Debug mode is enabled")
	}

	ctx := context.Background()

	if *fEnableCloudProfiler {
		if err := profiler.Start(profiler.Config{
			Service:        "pretty-plots",
			ServiceVersion: *fVersion,
			ProjectID:      *fProjectID,
		}); err != nil {
			log.Fatalf("Failed to start profiler: %v", err)
		}
	}

	if *fEnablePprof {
		go func() {
			if err := http.ListenAndServe("localhost:8080", nil); err != nil {
				log.Fatalf("error starting http server for pprof: %v", err)
			}
		}()
	}

	if *fEnableTraceExport {
		defer enableTraceExport(ctx, *fTraceSampleRate)()
	}
	if *fEnableMetricsExport {
		registerAggregationViews()
		if err := enableSDExporter(*fProjectID); err != nil {
			log.Fatalf("while enabling the stackdriver exporter: %v", err)
		}
		defer closeSDExporter()
	}

	groups := parseGroups(*fGroups)
	if len(groups) == 0 {
		log.Fatal("you must set --groups")
	}
	fallback, err := parseFallback(*fFallback)
	if err != nil {
		log.Fatalf("bad --fallback-positions %q: %v", *fFallback, err)
	}
	bands, ok := studyBands(*fBand)
	if !ok {
		log.Fatalf("unknown --compare-band %q", *fBand)
	}

	gcsOpts := &input.GCSOptions{
		Protocol:             *fClientProtocol,
		WithReadStallTimeout: *fWithReadStall,
		MinDelay:             *fMinDelay,
		TargetPercentile:     *fTargetPercentile,
	}

	var table *input.Table
	switch {
	case *fInput != "" && *fInputDir != "":
		log.Fatal("set only one of --input and --input-dir")
	case *fInput != "":
		table, err = input.Load(ctx, *fInput, gcsOpts)
	case *fInputDir != "":
		table, err = input.LoadDir(ctx, *fInputDir, *fWorkers)
	default:
		log.Fatal("you must set --input or --input-dir")
	}
	if err != nil {
		log.Fatalf("while loading input: %v", err)
	}

	printMetricSummary(table.Header, table.Rows, *fMetricCol)

	agg, err := aggregate.New(aggregate.Config{
		Schema: aggregate.Schema{
			GroupColumn:  *fGroupCol,
			LossColumn:   *fLossCol,
			MetricColumn: *fMetricCol,
			Fallback:     fallback,
		},
		Bands:  bands,
		Groups: groups,
	})
	if err != nil {
		log.Fatalf("while configuring the aggregator: %v", err)
	}

	res, err := agg.Run(table.Header, table.Rows)
	if err != nil {
		log.Fatalf("while aggregating: %v", err)
	}
	recordAggregationStats(ctx, res)
	log.Infof("rows: %d total, %d ingested, %d skipped, %d warnings, %d empty cells",
		res.RowsTotal, res.RowsIngested, res.RowsSkipped, len(res.Warnings), len(res.MissingCells))

	if res.AllMissing() {
		log.Fatal("no data for any group under any condition, refusing to render")
	}

	cfg := chart.Config{
		Title:  *fTitle,
		XLabel: *fXLabel,
		YLabel: *fYLabel,
	}
	p, err := chart.GroupedBars(cfg, tableFromResult(res, res.Groups))
	if err != nil {
		log.Fatalf("while building the chart: %v", err)
	}

	paths, err := chart.SavePair(p, cfg, *fOutput)
	if err != nil {
		log.Fatalf("while saving the chart: %v", err)
	}
	log.Infof("chart written to %s", strings.Join(paths, " and "))

	if *fUploadBucketPath != "" {
		if err := input.UploadArtifacts(ctx, *fUploadBucketPath, paths); err != nil {
			log.Fatalf("while uploading charts: %v", err)
		}
	}
}
