package segmap

import (
	"fmt"
	"math"
	"strings"
)

// Stats returns statistics for the Map. Like iteration it reads without
// locking, so under concurrent writes the numbers may not match any single
// moment. It is an O(N) operation meant for diagnostics.
func (m *Map[K, V]) Stats() *MapStats {
	table := m.loadTable()
	stats := &MapStats{
		Segments:     len(table.segments),
		TotalGrowths: m.growths.Load(),
		MinEntries:   math.MaxInt,
	}
	for i := range table.segments {
		s := &table.segments[i]
		stats.Counter += int(s.count.Load())
		buckets := s.table.Load().buckets
		stats.TotalBuckets += len(buckets)
		for j := range buckets {
			nentries := 0
			for e := buckets[j].Load(); e != nil; e = e.next {
				if e.value.Load() != nil {
					nentries++
				}
			}
			stats.Size += nentries
			if nentries == 0 {
				stats.EmptyBuckets++
			}
			stats.MinEntries = min(stats.MinEntries, nentries)
			stats.MaxEntries = max(stats.MaxEntries, nentries)
		}
	}
	return stats
}

// MapStats is Map statistics.
//
// The fields are meant for diagnostics and may change between releases.
type MapStats struct {
	// Segments is the number of segments.
	Segments int
	// TotalBuckets is the number of buckets over all segments.
	TotalBuckets int
	// EmptyBuckets is the number of buckets holding no entries.
	EmptyBuckets int
	// Size is the number of entries found by walking the buckets.
	Size int
	// Counter is the sum of the segment counts. Under concurrent writes it
	// may differ from Size.
	Counter int
	// MinEntries is the length of the shortest bucket chain.
	MinEntries int
	// MaxEntries is the length of the longest bucket chain.
	MaxEntries int
	// TotalGrowths is the number of segment rehashes.
	TotalGrowths uint32
}

// String returns a multi-line rendering of the statistics.
func (s *MapStats) String() string {
	var sb strings.Builder
	sb.WriteString("MapStats{\n")
	_, _ = fmt.Fprintf(&sb, "Segments:     %d\n", s.Segments)
	_, _ = fmt.Fprintf(&sb, "TotalBuckets: %d\n", s.TotalBuckets)
	_, _ = fmt.Fprintf(&sb, "EmptyBuckets: %d\n", s.EmptyBuckets)
	_, _ = fmt.Fprintf(&sb, "Size:         %d\n", s.Size)
	_, _ = fmt.Fprintf(&sb, "Counter:      %d\n", s.Counter)
	_, _ = fmt.Fprintf(&sb, "MinEntries:   %d\n", s.MinEntries)
	_, _ = fmt.Fprintf(&sb, "MaxEntries:   %d\n", s.MaxEntries)
	_, _ = fmt.Fprintf(&sb, "TotalGrowths: %d\n", s.TotalGrowths)
	sb.WriteString("}\n")
	return sb.String()
}
