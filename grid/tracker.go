// Package grid maintains connectivity between resource-network nodes.
//
// The tracker is a classic union-find (union by rank, path compression)
// over external node ids, paired with a live adjacency list. Union-find
// has no native split operation, so Disconnect and RemoveNode discard
// the parent/rank state of the affected cluster and re-union it from
// the surviving edges. Cost is bounded by cluster size, not world size.
package grid

import "log/slog"

// Tracker tracks which nodes are connected by live links.
type Tracker struct {
	parent map[uint64]uint64
	rank   map[uint64]int
	adj    map[uint64]map[uint64]struct{}

	// Nodes whose cluster membership may have changed since the last
	// TakeDirty call. Consumed by the registry diff once per tick.
	dirty map[uint64]struct{}
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		parent: make(map[uint64]uint64),
		rank:   make(map[uint64]int),
		adj:    make(map[uint64]map[uint64]struct{}),
		dirty:  make(map[uint64]struct{}),
	}
}

// Has reports whether the node is known to the tracker.
func (t *Tracker) Has(id uint64) bool {
	_, ok := t.parent[id]
	return ok
}

// Linked reports whether a live link exists between a and b.
func (t *Tracker) Linked(a, b uint64) bool {
	_, ok := t.adj[a][b]
	return ok
}

// AddNode registers a node as an isolated single-member cluster.
// Adding a node that already exists is a no-op.
func (t *Tracker) AddNode(id uint64) bool {
	if t.Has(id) {
		return false
	}
	t.parent[id] = id
	t.rank[id] = 0
	t.adj[id] = make(map[uint64]struct{})
	t.dirty[id] = struct{}{}
	return true
}

// RemoveNode deletes a node and all its links, then rebuilds the
// remainder of its cluster from the surviving edges. Removing an
// unknown node is a no-op with a logged warning.
func (t *Tracker) RemoveNode(id uint64) bool {
	if !t.Has(id) {
		slog.Warn("tracker: remove of unknown node dropped", "node", id)
		return false
	}

	members := t.cluster(id)

	for nb := range t.adj[id] {
		delete(t.adj[nb], id)
	}
	delete(t.adj, id)
	delete(t.parent, id)
	delete(t.rank, id)
	delete(t.dirty, id)

	rest := members[:0]
	for _, m := range members {
		if m != id {
			rest = append(rest, m)
		}
	}
	t.rebuild(rest)
	return true
}

// Connect links a and b and merges their clusters. Self-links,
// unknown endpoints, and duplicate links are idempotent no-ops.
func (t *Tracker) Connect(a, b uint64) bool {
	if a == b {
		slog.Warn("tracker: self-link dropped", "node", a)
		return false
	}
	if !t.Has(a) || !t.Has(b) {
		slog.Warn("tracker: link with unknown endpoint dropped", "a", a, "b", b)
		return false
	}
	if t.Linked(a, b) {
		return false
	}
	t.adj[a][b] = struct{}{}
	t.adj[b][a] = struct{}{}
	t.union(a, b)
	t.dirty[a] = struct{}{}
	t.dirty[b] = struct{}{}
	return true
}

// Disconnect removes the link between a and b and rebuilds the cluster
// that contained it, yielding one or two clusters depending on whether
// another path survives. Breaking a link that does not exist is a no-op.
func (t *Tracker) Disconnect(a, b uint64) bool {
	if !t.Linked(a, b) {
		slog.Warn("tracker: break of unknown link dropped", "a", a, "b", b)
		return false
	}

	// Snapshot the cluster before the cut; both fragments live in it.
	members := t.cluster(a)

	delete(t.adj[a], b)
	delete(t.adj[b], a)

	t.rebuild(members)
	return true
}

// FindRoot returns the representative of the node's cluster.
func (t *Tracker) FindRoot(id uint64) (uint64, bool) {
	if !t.Has(id) {
		return 0, false
	}
	return t.find(id), true
}

// MembersOfRoot returns every node in the cluster containing id.
// Any member may be passed, not only the representative.
func (t *Tracker) MembersOfRoot(id uint64) []uint64 {
	if !t.Has(id) {
		return nil
	}
	return t.cluster(id)
}

// Connected reports whether a path of live links exists between a and b.
func (t *Tracker) Connected(a, b uint64) bool {
	if !t.Has(a) || !t.Has(b) {
		return false
	}
	return t.find(a) == t.find(b)
}

// Len returns the number of tracked nodes.
func (t *Tracker) Len() int {
	return len(t.parent)
}

// EachEdge calls fn once per live link, with a < b.
func (t *Tracker) EachEdge(fn func(a, b uint64)) {
	for a, nbs := range t.adj {
		for b := range nbs {
			if a < b {
				fn(a, b)
			}
		}
	}
}

// TakeDirty returns the nodes touched since the last call and clears
// the set. Removed nodes are not reported; the caller saw their ids
// in the removal events.
func (t *Tracker) TakeDirty() []uint64 {
	if len(t.dirty) == 0 {
		return nil
	}
	out := make([]uint64, 0, len(t.dirty))
	for id := range t.dirty {
		out = append(out, id)
	}
	t.dirty = make(map[uint64]struct{})
	return out
}

// find locates the root with iterative path compression.
func (t *Tracker) find(id uint64) uint64 {
	root := id
	for t.parent[root] != root {
		root = t.parent[root]
	}
	for t.parent[id] != root {
		next := t.parent[id]
		t.parent[id] = root
		id = next
	}
	return root
}

// union merges the clusters of a and b by rank.
func (t *Tracker) union(a, b uint64) {
	ra, rb := t.find(a), t.find(b)
	if ra == rb {
		return
	}
	if t.rank[ra] < t.rank[rb] {
		ra, rb = rb, ra
	}
	t.parent[rb] = ra
	if t.rank[ra] == t.rank[rb] {
		t.rank[ra]++
	}
}

// cluster walks the adjacency list from id and returns every reachable
// node, including id itself. The walk equals the union-find set because
// rebuild keeps the two structures in sync.
func (t *Tracker) cluster(id uint64) []uint64 {
	visited := map[uint64]struct{}{id: {}}
	queue := []uint64{id}
	for head := 0; head < len(queue); head++ {
		cur := queue[head]
		for nb := range t.adj[cur] {
			if _, seen := visited[nb]; !seen {
				visited[nb] = struct{}{}
				queue = append(queue, nb)
			}
		}
	}
	return queue
}

// rebuild resets the parent/rank state of the given members and
// re-unions them from the live edge list.
func (t *Tracker) rebuild(members []uint64) {
	for _, m := range members {
		t.parent[m] = m
		t.rank[m] = 0
		t.dirty[m] = struct{}{}
	}
	for _, m := range members {
		for nb := range t.adj[m] {
			t.union(m, nb)
		}
	}
}
