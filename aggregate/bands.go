package aggregate

import (
	"fmt"
	"sort"
)

// Band is a named tolerance band over the loss fraction. A row whose loss
// fraction falls inside the band is assigned the band's label as its
// condition. Lo and Hi bound the band; OpenLo and OpenHi exclude the
// corresponding endpoint.
type Band struct {
	Label  string
	Lo, Hi float64
	OpenLo bool
	OpenHi bool
}

// Within returns a band matching |x - center| < tol, both endpoints
// excluded.
func Within(label string, center, tol float64) Band {
	return Band{Label: label, Lo: center - tol, Hi: center + tol, OpenLo: true, OpenHi: true}
}

// Around returns a band matching |x - center| <= tol, both endpoints
// included.
func Around(label string, center, tol float64) Band {
	return Band{Label: label, Lo: center - tol, Hi: center + tol}
}

// Contains reports whether x falls inside the band.
func (b Band) Contains(x float64) bool {
	if x < b.Lo || (b.OpenLo && x == b.Lo) {
		return false
	}
	if x > b.Hi || (b.OpenHi && x == b.Hi) {
		return false
	}
	return true
}

// Bands used by the packet-loss studies. Bounds are spelled out as
// literals: computing them as center+-tol puts 0.20-0.05 a ulp above 0.15
// and the boundary runs fall out of the band.
var (
	// ZeroLoss matches runs with effectively no packet loss: |x| < 0.01.
	ZeroLoss = Band{Label: "0%", Lo: -0.01, Hi: 0.01, OpenLo: true, OpenHi: true}
	// ZeroLossExact matches runs with no packet loss at all: x == 0.
	// The low-loss study uses it as the baseline, since LowLoss starts
	// right above 0 and would overlap ZeroLoss.
	ZeroLossExact = Band{Label: "0%", Lo: 0, Hi: 0}
	// TwentyLoss matches runs around 20% packet loss: 0.15 <= x <= 0.25.
	TwentyLoss = Band{Label: "20%", Lo: 0.15, Hi: 0.25}
	// LowLoss matches lossy runs up to 5%: 0 < x <= 0.05.
	LowLoss = Band{Label: "0-5%", Lo: 0, Hi: 0.05, OpenLo: true}
)

// Classifier assigns condition labels by tolerance-band matching. Bands
// must be pairwise disjoint; overlapping bands are a configuration error
// rejected by NewClassifier rather than resolved silently.
type Classifier struct {
	bands []Band
}

// NewClassifier validates the given bands and returns a Classifier over
// them. Label order is preserved and becomes the condition order of
// aggregation results.
func NewClassifier(bands ...Band) (*Classifier, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("no bands configured")
	}
	seen := make(map[string]struct{}, len(bands))
	for _, b := range bands {
		if b.Label == "" {
			return nil, fmt.Errorf("band with bounds [%v, %v] has no label", b.Lo, b.Hi)
		}
		if _, ok := seen[b.Label]; ok {
			return nil, fmt.Errorf("duplicate band label %q", b.Label)
		}
		seen[b.Label] = struct{}{}
		if b.Lo > b.Hi {
			return nil, fmt.Errorf("band %q: lower bound %v above upper bound %v", b.Label, b.Lo, b.Hi)
		}
		if b.Lo == b.Hi && (b.OpenLo || b.OpenHi) {
			return nil, fmt.Errorf("band %q is empty", b.Label)
		}
	}

	ordered := make([]Band, len(bands))
	copy(ordered, bands)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Lo != ordered[j].Lo {
			return ordered[i].Lo < ordered[j].Lo
		}
		return ordered[i].Hi < ordered[j].Hi
	})
	for i := 1; i < len(ordered); i++ {
		prev, cur := ordered[i-1], ordered[i]
		if cur.Lo < prev.Hi {
			return nil, fmt.Errorf("bands %q and %q overlap", prev.Label, cur.Label)
		}
		// Touching endpoints are fine as long as at most one side claims
		// the shared point.
		if cur.Lo == prev.Hi && !prev.OpenHi && !cur.OpenLo {
			return nil, fmt.Errorf("bands %q and %q both contain %v", prev.Label, cur.Label, cur.Lo)
		}
	}

	return &Classifier{bands: bands}, nil
}

// Classify returns the label of the band containing x. The second return
// is false when x falls in no band; such rows are excluded from
// aggregation entirely.
func (c *Classifier) Classify(x float64) (string, bool) {
	for _, b := range c.bands {
		if b.Contains(x) {
			return b.Label, true
		}
	}
	return "", false
}

// Labels returns the band labels in configuration order.
func (c *Classifier) Labels() []string {
	labels := make([]string, len(c.bands))
	for i, b := range c.bands {
		labels[i] = b.Label
	}
	return labels
}
