package aggregate

import (
	"errors"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var videoHeader = []string{"video", "avg_packet_loss", "lpips"}

func newVideoAggregator(t *testing.T, groups []string, logger *log.Logger) *Aggregator {
	t.Helper()
	agg, err := New(Config{
		Schema: Schema{
			GroupColumn:  "video",
			LossColumn:   "avg_packet_loss",
			MetricColumn: "lpips",
		},
		Bands:  []Band{ZeroLoss, TwentyLoss},
		Groups: groups,
		Logger: logger,
	})
	require.NoError(t, err)
	return agg
}

func TestRunAggregatesSpecFixture(t *testing.T) {
	agg := newVideoAggregator(t, []string{"video-0.mp4", "video-1.mp4"}, nil)

	rows := [][]string{
		{"video-0.mp4", "0.0", "0.10"},
		{"video-0.mp4", "0.20", "0.30"},
		{"video-1.mp4", "0.0", "0.15"},
	}
	res, err := agg.Run(videoHeader, rows)
	require.NoError(t, err)

	v, ok := res.Value("video-0.mp4", "0%")
	require.True(t, ok)
	assert.Equal(t, 0.10, v)
	v, ok = res.Value("video-0.mp4", "20%")
	require.True(t, ok)
	assert.Equal(t, 0.30, v)
	v, ok = res.Value("video-1.mp4", "0%")
	require.True(t, ok)
	assert.Equal(t, 0.15, v)

	_, ok = res.Value("video-1.mp4", "20%")
	assert.False(t, ok, "cell without data must be missing, not zero")
	assert.Equal(t, []Key{{Group: "video-1.mp4", Condition: "20%"}}, res.MissingCells)

	assert.Equal(t, []string{"video-0.mp4", "video-1.mp4"}, res.Groups)
	assert.Equal(t, []string{"0%", "20%"}, res.Conditions)
}

func TestRunComputesExactMean(t *testing.T) {
	agg := newVideoAggregator(t, []string{"video-0.mp4"}, nil)

	rows := [][]string{
		{"video-0.mp4", "0.0", "1.0"},
		{"video-0.mp4", "0.0", "2.0"},
		{"video-0.mp4", "0.0", "3.0"},
	}
	res, err := agg.Run(videoHeader, rows)
	require.NoError(t, err)

	v, ok := res.Value("video-0.mp4", "0%")
	require.True(t, ok)
	assert.Equal(t, 2.0, v)

	cell, ok := res.CellFor("video-0.mp4", "0%")
	require.True(t, ok)
	assert.Equal(t, 3, cell.Count)
}

func TestRunSkipsMalformedRowsWithWarnings(t *testing.T) {
	logger, hook := test.NewNullLogger()
	agg := newVideoAggregator(t, []string{"video-0.mp4"}, logger)

	rows := [][]string{
		{"video-0.mp4", "0.0", "0.10"},
		{"video-0.mp4", "0.0", "0.11"},
		{"video-0.mp4", "0.0", "not-a-number"},
		{"video-0.mp4", "0.0", "0.12"},
		{"video-0.mp4", "0.20", "0.30"},
		{"video-0.mp4", "oops", "0.31"},
		{"video-0.mp4", "0.20", "0.32"},
		{"video-0.mp4", "0.20", "0.33"},
		{"video-0.mp4", "0.0", "0.13"},
		{"video-0.mp4", "0.20", "0.34"},
	}
	res, err := agg.Run(videoHeader, rows)
	require.NoError(t, err)

	assert.Equal(t, 10, res.RowsTotal)
	assert.Equal(t, 8, res.RowsIngested)
	require.Len(t, res.Warnings, 2)
	assert.Equal(t, 3, res.Warnings[0].Row)
	assert.Contains(t, res.Warnings[0].Reason, "bad metric value")
	assert.Equal(t, 6, res.Warnings[1].Row)
	assert.Contains(t, res.Warnings[1].Reason, "bad loss fraction")

	warned := 0
	for _, e := range hook.AllEntries() {
		if e.Level == log.WarnLevel {
			warned++
		}
	}
	assert.Equal(t, 2, warned)
}

func TestRunDropsUnclassifiedAndForeignRowsSilently(t *testing.T) {
	agg := newVideoAggregator(t, []string{"video-0.mp4"}, nil)

	rows := [][]string{
		{"video-0.mp4", "0.0", "0.10"},
		{"video-0.mp4", "0.50", "0.99"}, // in no band
		{"video-7.mp4", "0.0", "0.42"},  // not a group of interest
	}
	res, err := agg.Run(videoHeader, rows)
	require.NoError(t, err)

	assert.Empty(t, res.Warnings)
	assert.Equal(t, 1, res.RowsIngested)
	assert.Equal(t, 2, res.RowsSkipped)
	v, ok := res.Value("video-0.mp4", "0%")
	require.True(t, ok)
	assert.Equal(t, 0.10, v)
}

func TestRunCleansQuotedFields(t *testing.T) {
	agg := newVideoAggregator(t, []string{"video-0.mp4"}, nil)

	rows := [][]string{
		{` "video-0.mp4" `, ` "0.0" `, ` "0.10" `},
	}
	res, err := agg.Run(videoHeader, rows)
	require.NoError(t, err)

	v, ok := res.Value("video-0.mp4", "0%")
	require.True(t, ok)
	assert.Equal(t, 0.10, v)
}

func TestRunWarnsOnShortRows(t *testing.T) {
	agg := newVideoAggregator(t, []string{"video-0.mp4"}, nil)

	rows := [][]string{
		{"video-0.mp4", "0.0"},
		{},
	}
	res, err := agg.Run(videoHeader, rows)
	require.NoError(t, err)

	assert.Equal(t, 1, res.RowsTotal, "empty rows are not counted")
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0].Reason, "not enough columns")
}

func TestRunFailsFastOnEmptyInput(t *testing.T) {
	agg := newVideoAggregator(t, []string{"video-0.mp4"}, nil)

	_, err := agg.Run(nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyInput))
}

func TestRunFailsOnMissingColumnsWithoutFallback(t *testing.T) {
	agg := newVideoAggregator(t, []string{"video-0.mp4"}, nil)

	header := []string{"clip", "loss", "score"}
	_, err := agg.Run(header, [][]string{{"video-0.mp4", "0.0", "0.10"}})
	require.Error(t, err)

	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.ElementsMatch(t, []string{"video", "avg_packet_loss", "lpips"}, schemaErr.Missing)
	assert.Equal(t, header, schemaErr.Header)
}

func TestRunFallbackPositionsAreLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	agg, err := New(Config{
		Schema: Schema{
			GroupColumn:  "video",
			LossColumn:   "avg_packet_loss",
			MetricColumn: "lpips",
			Fallback:     &FallbackPositions{Group: 0, Loss: 1, Metric: 2},
		},
		Bands:  []Band{ZeroLoss, TwentyLoss},
		Groups: []string{"video-0.mp4"},
		Logger: logger,
	})
	require.NoError(t, err)

	// Header lookup finds only the loss column; the other two fall back.
	header := []string{"clip", "avg_packet_loss", "score"}
	res, err := agg.Run(header, [][]string{{"video-0.mp4", "0.0", "0.10"}})
	require.NoError(t, err)

	v, ok := res.Value("video-0.mp4", "0%")
	require.True(t, ok)
	assert.Equal(t, 0.10, v)

	var fallbackWarnings int
	for _, e := range hook.AllEntries() {
		if e.Level == log.WarnLevel {
			fallbackWarnings++
		}
	}
	assert.Equal(t, 2, fallbackWarnings, "each fallback use must be logged")
}

func TestRunIsDeterministicAndPure(t *testing.T) {
	agg := newVideoAggregator(t, []string{"video-0.mp4", "video-1.mp4"}, nil)

	rows := [][]string{
		{"video-0.mp4", "0.0", "0.10"},
		{"video-0.mp4", "0.20", "0.30"},
		{"video-1.mp4", "0.0", "0.15"},
		{"video-1.mp4", "bad", "0.15"},
	}
	snapshot := make([][]string, len(rows))
	for i, rec := range rows {
		snapshot[i] = append([]string(nil), rec...)
	}

	first, err := agg.Run(videoHeader, rows)
	require.NoError(t, err)
	second, err := agg.Run(videoHeader, rows)
	require.NoError(t, err)

	assert.Equal(t, first.Groups, second.Groups)
	assert.Equal(t, first.Conditions, second.Conditions)
	assert.Equal(t, first.MissingCells, second.MissingCells)
	assert.Equal(t, first.Warnings, second.Warnings)
	for _, group := range first.Groups {
		for _, condition := range first.Conditions {
			v1, ok1 := first.Value(group, condition)
			v2, ok2 := second.Value(group, condition)
			assert.Equal(t, ok1, ok2)
			assert.Equal(t, v1, v2)
		}
	}

	assert.Equal(t, snapshot, rows, "input rows must not be mutated")
}

func TestRunAllMissing(t *testing.T) {
	agg := newVideoAggregator(t, []string{"video-0.mp4"}, nil)

	res, err := agg.Run(videoHeader, [][]string{{"video-9.mp4", "0.0", "0.10"}})
	require.NoError(t, err)
	assert.True(t, res.AllMissing())
	assert.Len(t, res.MissingCells, 2)
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Run("incomplete schema", func(t *testing.T) {
		_, err := New(Config{
			Schema: Schema{GroupColumn: "video"},
			Bands:  []Band{ZeroLoss},
			Groups: []string{"video-0.mp4"},
		})
		require.Error(t, err)
	})

	t.Run("no groups", func(t *testing.T) {
		_, err := New(Config{
			Schema: Schema{GroupColumn: "video", LossColumn: "avg_packet_loss", MetricColumn: "lpips"},
			Bands:  []Band{ZeroLoss},
		})
		require.Error(t, err)
	})

	t.Run("overlapping bands", func(t *testing.T) {
		_, err := New(Config{
			Schema: Schema{GroupColumn: "video", LossColumn: "avg_packet_loss", MetricColumn: "lpips"},
			Bands:  []Band{Around("a", 0.1, 0.1), Around("b", 0.15, 0.1)},
			Groups: []string{"video-0.mp4"},
		})
		require.Error(t, err)
	})
}
