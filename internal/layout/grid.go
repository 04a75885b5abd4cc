package layout

import (
	"math"
	"sort"
	"time"

	"github.com/shiguredo/hisui-sub000/internal/domain"
)

// decideGridDimensions picks a rows x columns grid holding at least
// numSources cells, as close to square as possible, honoring maxRows and/or
// maxColumns when the caller pins either (0 means unbounded). When a pinned
// bound forces the grid below numSources's natural capacity, the grid is
// still returned undersized: callers (via assignSources) simply leave the
// excess sources unassigned to any cell rather than failing the composition.
func decideGridDimensions(maxRows, maxColumns, numSources int) (rows, columns int) {
	if numSources <= 0 {
		return 1, 1
	}

	columns = int(math.Ceil(math.Sqrt(float64(numSources))))
	rows = ceilDiv(numSources, columns)

	if maxRows > 0 && rows > maxRows {
		rows = maxRows
		columns = ceilDiv(numSources, rows)
	}
	if maxColumns > 0 && columns > maxColumns {
		columns = maxColumns
		rows = ceilDiv(numSources, columns)
	}
	if maxRows > 0 && rows > maxRows {
		rows = maxRows
	}
	if maxColumns > 0 && columns > maxColumns {
		columns = maxColumns
	}
	return rows, columns
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

// sortedByStart returns source IDs from sources ordered by ascending start
// timestamp, SourceID lexicographic order breaking ties.
func sortedByStart(sources map[domain.SourceID]*domain.AggregatedSourceInfo) []domain.SourceID {
	ids := make([]domain.SourceID, 0, len(sources))
	for id := range sources {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := sources[ids[i]], sources[ids[j]]
		if a.StartTimestamp != b.StartTimestamp {
			return a.StartTimestamp < b.StartTimestamp
		}
		return ids[i] < ids[j]
	})
	return ids
}

// decideMaxSimultaneousSources sweeps the sources' [start, stop] intervals
// and returns the maximum number concurrently live at any instant — the
// minimum cell count a reuse-enabled region needs to never force two live
// sources to share one cell.
func decideMaxSimultaneousSources(sources map[domain.SourceID]*domain.AggregatedSourceInfo) int {
	type event struct {
		t      time.Duration
		delta  int
		isStop bool // stop events are processed after start events at the same instant
	}
	events := make([]event, 0, len(sources)*2)
	for _, s := range sources {
		events = append(events, event{t: s.StartTimestamp, delta: 1})
		events = append(events, event{t: s.StopTimestamp, delta: -1, isStop: true})
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].t != events[j].t {
			return events[i].t < events[j].t
		}
		return !events[i].isStop && events[j].isStop
	})

	max, cur := 0, 0
	for _, e := range events {
		cur += e.delta
		if cur > max {
			max = cur
		}
	}
	return max
}

// decideRequiredCells returns the number of grid cells a region needs: the
// reuse-free source count for domain.ReuseNone, or the sweep-line overlap
// count for the reuse policies, then grown by one for every excluded cell
// index that falls within the (growing) required range.
func decideRequiredCells(sources map[domain.SourceID]*domain.AggregatedSourceInfo, reuse domain.ReuseKind, cellsExcluded []int) int {
	var base int
	if reuse == domain.ReuseNone {
		base = len(sources)
	} else {
		base = decideMaxSimultaneousSources(sources)
	}

	excluded := append([]int(nil), cellsExcluded...)
	sort.Ints(excluded)
	required := base
	for _, e := range excluded {
		if e < required {
			required++
		}
	}
	return required
}

// assignSources computes each source's fixed (cell index, tie-break
// priority) pair. For domain.ReuseNone every source gets its own cell, in
// start-timestamp order, skipping excluded cell indices; sources beyond the
// available cell count are left unassigned. For the reuse policies, cells
// are shared over time via greedy lowest-free-cell interval packing: a
// source is assigned the lowest-index available cell whose previous
// occupant has already ended. Priority is the processing rank (ascending
// for ShowOldest, descending for ShowNewest) so that, at query time, the
// minimum-priority live source assigned to a cell wins ties.
func assignSources(reuse domain.ReuseKind, sources map[domain.SourceID]*domain.AggregatedSourceInfo, numCells int, cellsExcluded []int) map[domain.SourceID]domain.AssignedSource {
	excluded := make(map[int]struct{}, len(cellsExcluded))
	for _, e := range cellsExcluded {
		excluded[e] = struct{}{}
	}
	available := make([]int, 0, numCells)
	for i := 0; i < numCells; i++ {
		if _, ok := excluded[i]; !ok {
			available = append(available, i)
		}
	}

	order := sortedByStart(sources)
	result := make(map[domain.SourceID]domain.AssignedSource, len(order))

	if reuse == domain.ReuseNone {
		for i, id := range order {
			if i >= len(available) {
				break
			}
			result[id] = domain.AssignedSource{CellIndex: available[i], Priority: i}
		}
		return result
	}

	occupant := make(map[int]domain.SourceID, len(available)) // cell -> current assigned source
	for rank, id := range order {
		src := sources[id]
		cell := -1
		for _, c := range available {
			prev, ok := occupant[c]
			if !ok {
				cell = c
				break
			}
			if sources[prev].StopTimestamp < src.StartTimestamp {
				cell = c
				break
			}
		}
		if cell == -1 {
			continue
		}
		occupant[cell] = id

		priority := rank
		if reuse == domain.ReuseShowNewest {
			priority = len(order) - 1 - rank
		}
		result[id] = domain.AssignedSource{CellIndex: cell, Priority: priority}
	}
	return result
}
