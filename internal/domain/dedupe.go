package domain

import (
	"sort"
	"strconv"
	"strings"
)

// DedupeConfig controls how near-duplicate locates are collapsed.
type DedupeConfig struct {
	// BucketMinutes is the width of the epoch-aligned time bucket.
	BucketMinutes int `json:"bucket_minutes"`
	// Precision is the number of decimal places kept when truncating
	// latitude and longitude.
	Precision int `json:"precision"`
}

// DedupeResult holds the surviving representatives in arrival order and the
// total number of points folded into them.
type DedupeResult struct {
	Points  []Point
	Removed int
}

type dedupeKey struct {
	bucket int64
	lat    int64
	lon    int64
}

// Dedupe collapses points sharing a (time bucket, truncated lat, truncated lon)
// key. The representative of each group is its earliest point by CreatedAt,
// ties broken by arrival order, and carries DuplicateCount = group size - 1.
func Dedupe(points []Point, cfg DedupeConfig) DedupeResult {
	if len(points) == 0 {
		return DedupeResult{}
	}

	// Arrival indices ordered by creation time; a stable sort keeps arrival
	// order among equal or missing CreatedAt values.
	order := make([]int, len(points))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return points[order[a]].CreatedAt.Before(points[order[b]].CreatedAt)
	})

	rep := make(map[dedupeKey]int, len(points)) // key -> arrival index of representative
	counts := make(map[int]int, len(points))    // representative -> duplicates
	for _, idx := range order {
		k := keyFor(points[idx], cfg)
		if first, ok := rep[k]; ok {
			counts[first]++
			continue
		}
		rep[k] = idx
		counts[idx] = 0
	}

	out := make([]Point, 0, len(rep))
	removed := 0
	for i, p := range points {
		n, ok := counts[i]
		if !ok {
			continue
		}
		p.DuplicateCount = n
		removed += n
		out = append(out, p)
	}
	return DedupeResult{Points: out, Removed: removed}
}

func keyFor(p Point, cfg DedupeConfig) dedupeKey {
	width := int64(max(cfg.BucketMinutes, 1))
	minutes := floorDiv(p.Timestamp.Unix(), 60)
	precision := max(cfg.Precision, 0)
	return dedupeKey{
		bucket: floorDiv(minutes, width),
		lat:    truncDecimal(p.Latitude, precision),
		lon:    truncDecimal(p.Longitude, precision),
	}
}

// truncDecimal truncates v toward zero at precision decimal places and
// returns it scaled by 10^precision. It works on the shortest decimal
// rendering of v, so 4.0013 keeps its last digit instead of becoming
// 4.00129999... after scaling.
func truncDecimal(v float64, precision int) int64 {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > precision {
		frac = frac[:precision]
	} else {
		frac += strings.Repeat("0", precision-len(frac))
	}
	n, _ := strconv.ParseInt(whole+frac, 10, 64)
	return n
}

// floorDiv divides rounding toward negative infinity so pre-epoch timestamps
// still fall in aligned buckets.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
