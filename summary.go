package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// printMetricSummary prints the distribution of the metric column before
// aggregation, as a sanity check on the input. Unparseable fields are
// ignored here; the aggregator reports them per row.
func printMetricSummary(header []string, rows [][]string, metricColumn string) {
	col := -1
	for i, name := range header {
		if strings.TrimSpace(name) == metricColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return
	}

	var values []float64
	for _, rec := range rows {
		if col >= len(rec) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[col]), 64)
		if err != nil {
			continue
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		fmt.Println("No metric values collected yet.")
		return
	}

	sort.Float64s(values)

	fmt.Printf("\n******* Metrics Summary: %s *******\n", metricColumn)
	fmt.Printf("Count: %d\n", len(values))
	fmt.Printf("Average: %.4f\n", stat.Mean(values, nil))
	fmt.Printf("Standard deviation: %.4f\n", stat.StdDev(values, nil))
	for _, p := range []float64{0, 0.50, 0.90, 0.95, 0.99, 1} {
		fmt.Printf("p%v: %.4f\n", p*100, stat.Quantile(p, stat.Empirical, values, nil))
	}
}
