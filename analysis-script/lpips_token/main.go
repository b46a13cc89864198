// Plots mean LPIPS against token count for runs at 0% and ~20% packet
// loss. Token counts are picked evenly across the observed range, plus the
// lowest token count that has 20%-loss data.
package main

import (
	"context"
	"flag"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/real-tron/pretty-plots/aggregate"
	"github.com/real-tron/pretty-plots/chart"
	"github.com/real-tron/pretty-plots/input"
)

var (
	fInput      = flag.String("input", "GenStream.csv", "Input CSV: local path or gs:// URI.")
	fOutput     = flag.String("output", "lpips_vs_token_number_filtered", "Output basename; .png and .pdf are written.")
	fNumTokens  = flag.Int("tokens", 9, "Number of evenly spaced token counts to pick before trimming to 8.")
	fDebugLevel = flag.String("d", "info", "Debug level: info, debug.")
)

type token struct {
	value float64
	raw   string // group key, exactly as it appears in the CSV
}

func clean(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}

func columnIndex(header []string, name string) int {
	for i, col := range header {
		if strings.TrimSpace(col) == name {
			return i
		}
	}
	log.Fatalf("column %q not found in header %v", name, header)
	return -1
}

// scanTokens collects the distinct token counts of classifiable rows, and
// which of them have ~20%-loss data.
func scanTokens(table *input.Table, classifier *aggregate.Classifier) (all []token, with20 map[float64]bool) {
	tokenCol := columnIndex(table.Header, "n_codes")
	lossCol := columnIndex(table.Header, "avg_packet_loss")

	seen := make(map[float64]string)
	with20 = make(map[float64]bool)
	for _, rec := range table.Rows {
		if len(rec) <= tokenCol || len(rec) <= lossCol {
			continue
		}
		value, err := strconv.ParseFloat(clean(rec[tokenCol]), 64)
		if err != nil {
			continue
		}
		loss, err := strconv.ParseFloat(clean(rec[lossCol]), 64)
		if err != nil {
			continue
		}
		condition, ok := classifier.Classify(loss)
		if !ok {
			continue
		}
		if _, ok := seen[value]; !ok {
			seen[value] = clean(rec[tokenCol])
		}
		if condition == aggregate.TwentyLoss.Label {
			with20[value] = true
		}
	}

	for value, raw := range seen {
		all = append(all, token{value: value, raw: raw})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].value < all[j].value })
	return all, with20
}

// selectTokens picks n evenly spaced token counts over the sorted observed
// set, drops 384 when it lacks 20%-loss data, keeps 8, and prepends the
// lowest token count that does have 20%-loss data.
func selectTokens(all []token, with20 map[float64]bool, n int) []token {
	if len(all) == 0 {
		log.Fatal("no classifiable token counts in the input")
	}
	if n < 2 {
		n = 2
	}

	indices := floats.Span(make([]float64, n), 0, float64(len(all)-1))
	var picked []token
	seen := make(map[float64]bool)
	for _, idx := range indices {
		t := all[int(idx)]
		if !seen[t.value] {
			seen[t.value] = true
			picked = append(picked, t)
		}
	}

	var trimmed []token
	for _, t := range picked {
		if t.value == 384 && !with20[t.value] {
			continue
		}
		trimmed = append(trimmed, t)
	}
	if len(trimmed) > 8 {
		trimmed = trimmed[:8]
	}

	lowest := math.Inf(1)
	var lowestTok token
	for _, t := range all {
		if with20[t.value] && t.value < lowest {
			lowest = t.value
			lowestTok = t
		}
	}
	if !math.IsInf(lowest, 1) {
		present := false
		for _, t := range trimmed {
			if t.value == lowestTok.value {
				present = true
				break
			}
		}
		if !present {
			trimmed = append([]token{lowestTok}, trimmed...)
		}
	}

	sort.Slice(trimmed, func(i, j int) bool { return trimmed[i].value < trimmed[j].value })
	return trimmed
}

func main() {
	flag.Parse()
	log.SetOutput(os.Stdout)
	if *fDebugLevel == "debug" {
		log.SetLevel(log.DebugLevel)
	}

	ctx := context.Background()
	table, err := input.Load(ctx, *fInput, nil)
	if err != nil {
		log.Fatalf("while loading input: %v", err)
	}

	classifier, err := aggregate.NewClassifier(aggregate.ZeroLoss, aggregate.TwentyLoss)
	if err != nil {
		log.Fatalf("while building classifier: %v", err)
	}

	all, with20 := scanTokens(table, classifier)
	selected := selectTokens(all, with20, *fNumTokens)

	groups := make([]string, len(selected))
	labels := make([]string, len(selected))
	for i, t := range selected {
		groups[i] = t.raw
		labels[i] = strconv.Itoa(int(t.value))
	}
	log.Infof("final selected token numbers: %v", labels)

	agg, err := aggregate.New(aggregate.Config{
		Schema: aggregate.Schema{
			GroupColumn:  "n_codes",
			LossColumn:   "avg_packet_loss",
			MetricColumn: "lpips",
		},
		Bands:  []aggregate.Band{aggregate.ZeroLoss, aggregate.TwentyLoss},
		Groups: groups,
	})
	if err != nil {
		log.Fatalf("while configuring the aggregator: %v", err)
	}
	res, err := agg.Run(table.Header, table.Rows)
	if err != nil {
		log.Fatalf("while aggregating: %v", err)
	}
	if res.AllMissing() {
		log.Fatal("no data for any token count, refusing to render")
	}

	t := chart.Table{GroupLabels: labels}
	for _, condition := range res.Conditions {
		s := chart.Series{Label: condition + " Packet Loss"}
		for _, group := range res.Groups {
			v, ok := res.Value(group, condition)
			s.Values = append(s.Values, chart.Value{V: v, OK: ok})
		}
		t.Series = append(t.Series, s)
	}

	cfg := chart.Config{
		XLabel: "Token Number",
		YLabel: "LPIPS",
	}
	p, err := chart.GroupedBars(cfg, t)
	if err != nil {
		log.Fatalf("while building the chart: %v", err)
	}
	paths, err := chart.SavePair(p, cfg, *fOutput)
	if err != nil {
		log.Fatalf("while saving the chart: %v", err)
	}
	log.Infof("chart written to %s", strings.Join(paths, " and "))
}
