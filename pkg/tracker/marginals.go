package tracker

import (
	"math"
	"sort"
)

// Marginal summarizes one card type for one player across all worlds.
type Marginal struct {
	// Expected is the probability-weighted mean count.
	Expected float64 `json:"expected"`
	// Min and Max are the extremes observed across surviving worlds.
	Min int `json:"min"`
	Max int `json:"max"`
	// Dist is the probability mass function over observed counts.
	Dist map[int]float64 `json:"dist"`
}

// PlayerMarginals aggregates the per-type marginals for one player.
type PlayerMarginals struct {
	Cards         map[Card]Marginal `json:"cards"`
	ExpectedTotal float64           `json:"expected_total"`
	// ExpectedBase and ExpectedCommodity split the total by sub-range; they
	// differ from ExpectedTotal only in the cities & knights variant.
	ExpectedBase      float64 `json:"expected_base"`
	ExpectedCommodity float64 `json:"expected_commodity"`
}

// Marginals computes the per-type expected count, observed min/max, and full
// count distribution for the given player.
func (t *Tracker) Marginals(p Player) (PlayerMarginals, error) {
	if err := t.checkPlayer(p); err != nil {
		return PlayerMarginals{}, err
	}

	out := PlayerMarginals{Cards: make(map[Card]Marginal, t.variant.NumCardTypes())}
	for _, c := range Cards(t.variant) {
		m := Marginal{Min: math.MaxInt, Dist: make(map[int]float64)}
		for _, w := range t.worlds {
			count := w.HandOf(p).Get(c)
			m.Dist[count] += w.prob
			m.Expected += float64(count) * w.prob
			if count < m.Min {
				m.Min = count
			}
			if count > m.Max {
				m.Max = count
			}
		}
		if m.Min == math.MaxInt {
			m.Min = 0
		}
		out.Cards[c] = m
		out.ExpectedTotal += m.Expected
		if c.IsCommodity() {
			out.ExpectedCommodity += m.Expected
		} else {
			out.ExpectedBase += m.Expected
		}
	}
	return out, nil
}

// MostLikelyHand returns the player's hand in the single highest-probability
// world. Ties break toward the earliest-encountered world.
func (t *Tracker) MostLikelyHand(p Player) (Hand, error) {
	if err := t.checkPlayer(p); err != nil {
		return Hand{}, err
	}
	best := t.worlds[0]
	for _, w := range t.worlds[1:] {
		if w.prob > best.prob {
			best = w
		}
	}
	return best.HandOf(p), nil
}

// Confidence is a 0..1 heuristic for how concentrated the belief about a
// player's hand is: the summed Shannon entropy of each card type's count
// distribution, normalized against the worst case of a uniform distribution
// over 0..MaxCountCeiling per type. 1 means a single certain hand; values
// near 0 mean the distribution is spread across many hypotheses.
func (t *Tracker) Confidence(p Player) (float64, error) {
	m, err := t.Marginals(p)
	if err != nil {
		return 0, err
	}
	entropy := 0.0
	for _, marginal := range m.Cards {
		for _, prob := range marginal.Dist {
			if prob > 0 {
				entropy -= prob * math.Log2(prob)
			}
		}
	}
	maxEntropy := float64(t.variant.NumCardTypes()) * math.Log2(float64(t.cfg.MaxCountCeiling+1))
	conf := 1 - entropy/maxEntropy
	if conf < 0 {
		conf = 0
	}
	return conf, nil
}

// WorldSnapshot is one hypothesis in a debug snapshot.
type WorldSnapshot struct {
	Probability float64                `json:"probability"`
	Hands       map[Player]map[Card]int `json:"hands"`
}

// DebugSnapshot is a structured view of the tracker's internal state for
// debugging and UI overlays.
type DebugSnapshot struct {
	Turn        int             `json:"turn"`
	WorldCount  int             `json:"world_count"`
	Resets      int             `json:"resets"`
	KnownTotals map[Player]int  `json:"known_totals,omitempty"`
	Bank        ResourceSet     `json:"bank,omitempty"`
	TopWorlds   []WorldSnapshot `json:"top_worlds"`
}

// Snapshot returns the current turn, world count, constraint state, and the
// topK highest-probability worlds with their structured hands.
func (t *Tracker) Snapshot(topK int) DebugSnapshot {
	snap := DebugSnapshot{
		Turn:       t.turn,
		WorldCount: len(t.worlds),
		Resets:     t.resets,
		Bank:       t.bank.Clone(),
	}
	if len(t.knownTotals) > 0 {
		snap.KnownTotals = make(map[Player]int, len(t.knownTotals))
		for p, total := range t.knownTotals {
			snap.KnownTotals[p] = total
		}
	}

	ordered := make([]*World, len(t.worlds))
	copy(ordered, t.worlds)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].prob > ordered[j].prob
	})
	if topK > 0 && topK < len(ordered) {
		ordered = ordered[:topK]
	}
	for _, w := range ordered {
		ws := WorldSnapshot{
			Probability: w.prob,
			Hands:       make(map[Player]map[Card]int, t.players),
		}
		for p := 1; p <= t.players; p++ {
			ws.Hands[Player(p)] = w.HandOf(Player(p)).Counts()
		}
		snap.TopWorlds = append(snap.TopWorlds, ws)
	}
	return snap
}
