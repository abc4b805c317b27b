package network

// Recompute rebuilds the aggregate balance of one network from its
// members. Supply sums operational producers only; demand sums every
// consumer's declared load unconditionally. The surplus decision is
// binary: a deficit unpowers every consumer on the network, never a
// priority-chosen subset, so outcomes stay reproducible tick to tick.
func (r *Registry) Recompute(id int, lk Lookup) bool {
	n, ok := r.byID[id]
	if !ok {
		return false
	}
	var supply, demand float64
	for m := range n.Members {
		info, ok := lk.Info(m)
		if !ok {
			continue
		}
		supply += info.Output
		demand += info.Demand
	}
	n.Supply = supply
	n.Demand = demand
	n.HasSurplus = supply >= demand
	return true
}

// RecomputeAll rebuilds the balance of every live network. Used after
// a bulk restore; the per-tick path recomputes touched networks only.
func (r *Registry) RecomputeAll(lk Lookup) {
	for id := range r.byID {
		r.Recompute(id, lk)
	}
}
