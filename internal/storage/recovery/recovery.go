// Package recovery reconstructs a consistent leveled tree from an unordered
// set of immutable sorted tables, as found on disk after a crash. It is a
// pure function of table metadata: key-range overlaps induce a directed
// graph, cycles of mutually order-ambiguous tables collapse into one color,
// and a longest-path labeling over the condensed DAG assigns levels so that
// every overlap edge points from a lower level to a strictly higher one.
package recovery

import (
	"go.uber.org/zap"

	qerrors "github.com/quarrydb/quarry/internal/errors"
	"github.com/quarrydb/quarry/internal/metrics"
	"github.com/quarrydb/quarry/internal/model"
)

// Recoverer assigns tables to levels.
type Recoverer struct {
	numLevels int
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// New creates a recoverer for a tree with numLevels levels.
func New(numLevels int, logger *zap.Logger, m *metrics.Metrics) *Recoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Recoverer{numLevels: numLevels, logger: logger, metrics: m}
}

// Recover builds a Version from table metadata. Tables with corrupt
// timestamp ranges are rejected before graph construction.
func (r *Recoverer) Recover(tables []*model.TableMetadata) (*model.Version, error) {
	r.metrics.RecoveryPasses.Inc()

	for _, t := range tables {
		if err := t.Validate(); err != nil {
			return nil, qerrors.CorruptedData("table metadata failed validation", err).
				WithDetail("digest", t.Digest)
		}
	}

	adj := buildAdjacency(tables)
	colors := stronglyConnected(adj)
	levels := assignLevels(adj, colors)
	r.normalize(levels)

	version := model.NewVersion(r.numLevels)
	for i, t := range tables {
		version.Levels[levels[colors[i]]].Add(t)
	}

	nonEmpty := 0
	for _, l := range version.Levels {
		if l.Len() > 0 {
			nonEmpty++
		}
	}
	r.metrics.RecoveryTables.Set(float64(len(tables)))
	r.metrics.RecoveryLevels.Set(float64(nonEmpty))
	r.logger.Info("version recovered",
		zap.Int("tables", len(tables)),
		zap.Int("levels", nonEmpty))
	return version, nil
}

// buildAdjacency adds a directed edge for every key-overlapping pair: from
// the timestamp-earlier table to the later one when their timestamp ranges
// are disjoint, and in both directions when the timestamp ranges overlap,
// since no consistent compaction order exists between those.
func buildAdjacency(tables []*model.TableMetadata) [][]int {
	adj := make([][]int, len(tables))
	for i, a := range tables {
		for j := i + 1; j < len(tables); j++ {
			b := tables[j]
			if !a.OverlapsKeys(b) {
				continue
			}
			switch {
			case a.OverlapsTimestamps(b):
				adj[i] = append(adj[i], j)
				adj[j] = append(adj[j], i)
			case a.BiggestTimestamp < b.SmallestTimestamp:
				adj[i] = append(adj[i], j)
			default:
				adj[j] = append(adj[j], i)
			}
		}
	}
	return adj
}

// tarjanFrame is one suspended DFS visit in the explicit stack.
type tarjanFrame struct {
	node int
	edge int // next adjacency index to explore
}

// stronglyConnected colors each node with its strongly-connected component.
// Tarjan's algorithm is unrolled onto an explicit stack: skewed inputs can
// chain thousands of overlapping tables, and the recursive form would
// overflow the goroutine stack long before the algorithm ran out of work.
func stronglyConnected(adj [][]int) []int {
	n := len(adj)
	const unvisited = -1

	index := make([]int, n)
	lowlink := make([]int, n)
	color := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = unvisited
		color[i] = unvisited
	}

	var (
		next      int
		numColors int
		stack     []int
		frames    []tarjanFrame
	)

	for start := 0; start < n; start++ {
		if index[start] != unvisited {
			continue
		}
		frames = append(frames[:0], tarjanFrame{node: start})
		index[start] = next
		lowlink[start] = next
		next++
		stack = append(stack, start)
		onStack[start] = true

		for len(frames) > 0 {
			f := &frames[len(frames)-1]
			v := f.node

			if f.edge < len(adj[v]) {
				w := adj[v][f.edge]
				f.edge++
				if index[w] == unvisited {
					index[w] = next
					lowlink[w] = next
					next++
					stack = append(stack, w)
					onStack[w] = true
					frames = append(frames, tarjanFrame{node: w})
				} else if onStack[w] {
					if index[w] < lowlink[v] {
						lowlink[v] = index[w]
					}
				}
				continue
			}

			// v is fully explored; pop a component if v is its root.
			if lowlink[v] == index[v] {
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					color[w] = numColors
					if w == v {
						break
					}
				}
				numColors++
			}
			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := frames[len(frames)-1].node
				if lowlink[v] < lowlink[parent] {
					lowlink[parent] = lowlink[v]
				}
			}
		}
	}
	return color
}

// assignLevels labels each color with the length of the longest path from
// any in-degree-zero seed in the condensed DAG. Longest path, not shortest:
// a color's level is only ever raised as longer paths are found, which is
// what guarantees every DAG edge ends up pointing from a lower level to a
// strictly higher one.
func assignLevels(adj [][]int, colors []int) []int {
	numColors := 0
	for _, c := range colors {
		if c+1 > numColors {
			numColors = c + 1
		}
	}

	// Condense inter-table edges onto colors, dropping self-color edges.
	colorAdj := make(map[int]map[int]struct{}, numColors)
	indegree := make([]int, numColors)
	for u, edges := range adj {
		cu := colors[u]
		for _, v := range edges {
			cv := colors[v]
			if cu == cv {
				continue
			}
			if colorAdj[cu] == nil {
				colorAdj[cu] = make(map[int]struct{})
			}
			if _, dup := colorAdj[cu][cv]; dup {
				continue
			}
			colorAdj[cu][cv] = struct{}{}
			indegree[cv]++
		}
	}

	level := make([]int, numColors)
	var queue []int
	for c := 0; c < numColors; c++ {
		if indegree[c] == 0 {
			queue = append(queue, c)
		}
	}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for v := range colorAdj[u] {
			if level[u]+1 > level[v] {
				level[v] = level[u] + 1
				queue = append(queue, v)
			}
		}
	}
	return level
}

// normalize shifts all levels down uniformly when the assignment overflows
// the tree's level count, clamping at zero. Freshness precision at level
// zero is sacrificed so the tables still fit instead of failing recovery.
func (r *Recoverer) normalize(levels []int) {
	maxLevel := 0
	for _, l := range levels {
		if l > maxLevel {
			maxLevel = l
		}
	}
	if maxLevel < r.numLevels {
		return
	}
	shift := maxLevel - (r.numLevels - 1)
	r.logger.Warn("level assignment overflows tree, shifting down",
		zap.Int("max_level", maxLevel),
		zap.Int("num_levels", r.numLevels),
		zap.Int("shift", shift))
	for i, l := range levels {
		l -= shift
		if l < 0 {
			l = 0
		}
		levels[i] = l
	}
}
