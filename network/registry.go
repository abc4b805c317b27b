package network

import (
	"sort"

	"github.com/gridworks-sim/gridworks/components"
	"github.com/gridworks-sim/gridworks/grid"
)

// Network is one maximal set of connected nodes plus its aggregate
// balance. Supply counts operational producers only; Demand counts
// every consumer unconditionally.
type Network struct {
	ID         int
	Members    map[uint64]struct{}
	Supply     float64
	Demand     float64
	HasSurplus bool
}

// Registry owns the current node partition. Network ids are stable
// while a network's identity is preserved tick to tick:
//
//   - a component derived 1:1 from one previous network keeps its id;
//   - a merge keeps the numerically smallest participating id and
//     retires the rest;
//   - a split retires the old id and assigns fresh ids to every
//     fragment, so "my id disappeared" is unambiguous downstream.
//
// The registry is exclusively owned by the tick loop; all external
// reads go through the published snapshot.
type Registry struct {
	nextID int
	byID   map[int]*Network
	byNode map[uint64]int
}

// RemovedNode describes a node deleted during the structure phase.
// The kind and producer state are captured before the entity is
// destroyed.
type RemovedNode struct {
	ID   uint64
	Kind components.Kind

	// WasOperational is set when a removed producer was contributing
	// supply, so downstream sees the generation loss.
	WasOperational bool
}

// NewRegistry creates an empty registry. Ids start at 1.
func NewRegistry() *Registry {
	return &Registry{
		nextID: 1,
		byID:   make(map[int]*Network),
		byNode: make(map[uint64]int),
	}
}

// Get returns the network with the given id.
func (r *Registry) Get(id int) (*Network, bool) {
	n, ok := r.byID[id]
	return n, ok
}

// NetworkOf returns the network containing the given node.
func (r *Registry) NetworkOf(node uint64) (*Network, bool) {
	id, ok := r.byNode[node]
	if !ok {
		return nil, false
	}
	return r.byID[id], true
}

// Len returns the number of live networks.
func (r *Registry) Len() int {
	return len(r.byID)
}

// Each calls fn for every live network in unspecified order.
func (r *Registry) Each(fn func(*Network)) {
	for _, n := range r.byID {
		fn(n)
	}
}

// ApplyDiff reconciles the registry against the tracker after a
// structure phase. It consumes the tracker's dirty set, applies the
// id survival convention, and returns the resulting change events
// plus the ids of every network whose balance must be recomputed.
func (r *Registry) ApplyDiff(tr *grid.Tracker, removed []RemovedNode, lk Lookup) (changes []TopologyChange, touched []int) {
	touchedSet := make(map[int]struct{})

	// Removed nodes leave their networks first. A network whose last
	// member vanishes simply retires its id.
	for _, rm := range removed {
		prevID, ok := r.byNode[rm.ID]
		if !ok {
			continue
		}
		delete(r.byNode, rm.ID)
		prev := r.byID[prevID]
		delete(prev.Members, rm.ID)

		switch rm.Kind {
		case components.KindProducer:
			if rm.WasOperational {
				changes = append(changes, TopologyChange{
					Kind: GeneratorStateChanged, NetworkID: prevID, NodeID: rm.ID,
				})
			}
		case components.KindConsumer:
			changes = append(changes, TopologyChange{Kind: ConsumerRemoved, NetworkID: prevID, NodeID: rm.ID})
		case components.KindLink:
			changes = append(changes, TopologyChange{Kind: LinkRemoved, NetworkID: prevID, NodeID: rm.ID})
		}

		if len(prev.Members) == 0 {
			delete(r.byID, prevID)
		} else {
			touchedSet[prevID] = struct{}{}
		}
	}

	// Current components containing any dirty node.
	comps := r.collectComponents(tr)

	// Previous ids wholly contained in a current component keep their
	// identity (alone) or merge (several); a previous network torn
	// across components is a split and retires its id.
	type compResult struct {
		members map[uint64]struct{}
		ordered []uint64
		id      int
		created bool
		merged  []int // retired ids, merge only
	}
	results := make([]*compResult, 0, len(comps))
	fragments := make(map[int][]*compResult) // torn prev id -> fragments

	for _, members := range comps {
		set := make(map[uint64]struct{}, len(members))
		for _, m := range members {
			set[m] = struct{}{}
		}
		res := &compResult{members: set, ordered: members}

		prevIDs := r.prevIDsOf(members)
		whole := prevIDs[:0]
		var torn []int
		for _, p := range prevIDs {
			if r.wholeWithin(p, set) {
				whole = append(whole, p)
			} else {
				torn = append(torn, p)
			}
		}

		switch {
		case len(whole) == 0 && len(torn) == 0:
			res.id = r.allocID()
			res.created = true
		case len(torn) == 0 && len(whole) == 1:
			res.id = whole[0]
		case len(torn) == 0:
			// Pure merge: smallest id survives.
			res.id = whole[0]
			res.merged = whole[1:]
		default:
			// At least one previous network is torn across components;
			// the fragment gets a fresh identity. Whole networks
			// absorbed into the fragment retire by merge.
			res.id = r.allocID()
			res.merged = whole
			for _, p := range torn {
				fragments[p] = append(fragments[p], res)
			}
		}
		results = append(results, res)
	}

	// Emit events and commit the new assignment.
	splitSources := make([]int, 0, len(fragments))
	for p := range fragments {
		splitSources = append(splitSources, p)
	}
	sort.Ints(splitSources)
	for _, p := range splitSources {
		into := make([]int, 0, len(fragments[p]))
		for _, frag := range fragments[p] {
			into = append(into, frag.id)
		}
		sort.Ints(into)
		changes = append(changes, TopologyChange{Kind: NetworkSplit, NetworkID: p, Into: into})
		delete(r.byID, p)
	}

	for _, res := range results {
		switch {
		case res.created:
			changes = append(changes, TopologyChange{Kind: NetworkCreated, NetworkID: res.id})
		case len(res.merged) > 0:
			for _, retired := range res.merged {
				changes = append(changes, TopologyChange{
					Kind: NetworkMerged, NetworkID: retired, Into: []int{res.id},
				})
			}
		}

		// Nodes with no prior assignment joining a surviving network
		// are reported individually; created networks and merges are
		// already covered by their own events.
		if !res.created {
			for _, m := range res.ordered {
				if _, had := r.byNode[m]; !had {
					changes = append(changes, r.memberJoined(res.id, m, lk)...)
				}
			}
		}

		r.commit(res.id, res.members, res.merged)
		touchedSet[res.id] = struct{}{}
	}

	// A touched id may have been retired by a later merge in the same
	// diff; drop those before reporting.
	touched = make([]int, 0, len(touchedSet))
	for id := range touchedSet {
		if _, ok := r.byID[id]; ok {
			touched = append(touched, id)
		}
	}
	sort.Ints(touched)
	return changes, touched
}

// collectComponents groups the tracker's dirty nodes into their full
// current components, ordered by smallest member id for determinism.
func (r *Registry) collectComponents(tr *grid.Tracker) [][]uint64 {
	dirty := tr.TakeDirty()
	seenRoot := make(map[uint64]struct{})
	var comps [][]uint64
	for _, d := range dirty {
		root, ok := tr.FindRoot(d)
		if !ok {
			continue
		}
		if _, dup := seenRoot[root]; dup {
			continue
		}
		seenRoot[root] = struct{}{}
		members := tr.MembersOfRoot(root)
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		comps = append(comps, members)
	}
	sort.Slice(comps, func(i, j int) bool { return comps[i][0] < comps[j][0] })
	return comps
}

// prevIDsOf returns the distinct previous network ids present among
// members, sorted ascending.
func (r *Registry) prevIDsOf(members []uint64) []int {
	seen := make(map[int]struct{})
	var ids []int
	for _, m := range members {
		if id, ok := r.byNode[m]; ok {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	sort.Ints(ids)
	return ids
}

// wholeWithin reports whether every surviving member of the previous
// network is inside the given component.
func (r *Registry) wholeWithin(prevID int, comp map[uint64]struct{}) bool {
	prev, ok := r.byID[prevID]
	if !ok {
		return false
	}
	for m := range prev.Members {
		if _, in := comp[m]; !in {
			return false
		}
	}
	return true
}

// memberJoined builds the per-kind membership event for a node that
// newly joined a surviving network.
func (r *Registry) memberJoined(netID int, node uint64, lk Lookup) []TopologyChange {
	info, ok := lk.Info(node)
	if !ok {
		return nil
	}
	switch info.Kind {
	case components.KindConsumer:
		return []TopologyChange{{Kind: ConsumerAdded, NetworkID: netID, NodeID: node}}
	case components.KindLink:
		return []TopologyChange{{Kind: LinkAdded, NetworkID: netID, NodeID: node}}
	default:
		// Producers surface through GeneratorStateChanged when they
		// become operational; joining a network is not itself a
		// generator transition.
		return nil
	}
}

// commit installs the component under the given id, retiring merged ids.
func (r *Registry) commit(id int, members map[uint64]struct{}, retired []int) {
	for _, old := range retired {
		delete(r.byID, old)
	}
	n, ok := r.byID[id]
	if !ok {
		n = &Network{ID: id}
		r.byID[id] = n
	}
	n.Members = members
	for m := range members {
		r.byNode[m] = id
	}
}

// allocID hands out the next fresh network id.
func (r *Registry) allocID() int {
	id := r.nextID
	r.nextID++
	return id
}
