package chart

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() Table {
	return Table{
		GroupLabels: []string{"Video 0", "Video 1", "Video 2"},
		Series: []Series{
			{Label: "0% Packet Loss", Values: []Value{
				{V: 0.10, OK: true}, {V: 0.15, OK: true}, {V: 0.12, OK: true},
			}},
			{Label: "20% Packet Loss", Values: []Value{
				{V: 0.30, OK: true}, {OK: false}, {V: 0.28, OK: true},
			}},
		},
	}
}

func TestGroupedBars(t *testing.T) {
	p, err := GroupedBars(Config{XLabel: "Video Sequence", YLabel: "LPIPS"}, sampleTable())
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Video Sequence", p.X.Label.Text)
	assert.Equal(t, "LPIPS", p.Y.Label.Text)
}

func TestGroupedBarsRejectsBadTables(t *testing.T) {
	t.Run("no groups", func(t *testing.T) {
		_, err := GroupedBars(Config{}, Table{})
		require.Error(t, err)
	})

	t.Run("no series", func(t *testing.T) {
		_, err := GroupedBars(Config{}, Table{GroupLabels: []string{"a"}})
		require.Error(t, err)
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := GroupedBars(Config{}, Table{
			GroupLabels: []string{"a", "b"},
			Series:      []Series{{Label: "s", Values: []Value{{V: 1, OK: true}}}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "2 groups")
	})
}

func TestSavePairWritesPNGAndPDF(t *testing.T) {
	p, err := GroupedBars(Config{}, sampleTable())
	require.NoError(t, err)

	base := filepath.Join(t.TempDir(), "lpips_report")
	paths, err := SavePair(p, Config{}, base)
	require.NoError(t, err)
	require.Equal(t, []string{base + ".png", base + ".pdf"}, paths)

	for _, path := range paths {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0), "%s should not be empty", path)
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "0.1000", FormatValue(0.1))
	assert.Equal(t, "0.0000", FormatValue(0.0))
	assert.Equal(t, "1.2346", FormatValue(1.23456))
}
