package tracker

import (
	"math/rand"
	"testing"
)

// simGame drives a tracker with randomly generated events while maintaining
// the true hands on the side, then checks that the true state is never
// filtered out and the distribution invariants hold after every event.
// Pruning is disabled (huge cap, tiny floor) so the truth hypothesis cannot
// be discarded for resource reasons.
type simGame struct {
	rng     *rand.Rand
	tr      *Tracker
	truth   []Hand // index player-1
	players int
	steals  int
}

func newSimGame(t *testing.T, seed int64, players int) *simGame {
	t.Helper()
	tr, err := NewWithConfig(players, VariantBase, Config{
		MaxWorlds:       100000,
		MinProb:         1e-15,
		MaxCountCeiling: 8,
	})
	if err != nil {
		t.Fatal(err)
	}
	truth := make([]Hand, players)
	for i := range truth {
		truth[i] = NewHand(VariantBase)
	}
	return &simGame{
		rng:     rand.New(rand.NewSource(seed)),
		tr:      tr,
		truth:   truth,
		players: players,
	}
}

func (g *simGame) randPlayer() Player { return Player(g.rng.Intn(g.players) + 1) }

// randHeldCard picks a card the player actually holds, or false if empty.
func (g *simGame) randHeldCard(p Player) (Card, bool) {
	h := g.truth[p-1]
	total := h.Total()
	if total == 0 {
		return 0, false
	}
	pick := g.rng.Intn(total)
	for _, c := range Cards(VariantBase) {
		pick -= h.Get(c)
		if pick < 0 {
			return c, true
		}
	}
	return 0, false
}

// step applies one random, truth-consistent event. Returns the event type
// applied, for debugging.
func (g *simGame) step(t *testing.T) EventType {
	t.Helper()
	p := g.randPlayer()

	switch g.rng.Intn(6) {
	case 0, 1: // production is the most common real event
		card := Card(g.rng.Intn(numBaseCards))
		amt := g.rng.Intn(2) + 1
		g.truth[p-1] = g.truth[p-1].Add(card, amt)
		if err := g.tr.Production(map[Player]ResourceSet{p: {card: amt}}); err != nil {
			t.Fatalf("production: %v", err)
		}
		return EventProduction

	case 2: // unobserved steal, bounded to keep the world count honest
		if g.steals >= 6 {
			return g.step(t)
		}
		victim := g.randPlayer()
		if victim == p {
			return g.step(t)
		}
		if card, ok := g.randHeldCard(victim); ok {
			g.truth[victim-1] = g.truth[victim-1].Subtract(card, 1)
			g.truth[p-1] = g.truth[p-1].Add(card, 1)
			g.steals++
		}
		if err := g.tr.Steal(p, victim); err != nil {
			t.Fatalf("steal: %v", err)
		}
		return EventSteal

	case 3: // discard a card the player truly holds
		card, ok := g.randHeldCard(p)
		if !ok {
			return g.step(t)
		}
		g.truth[p-1] = g.truth[p-1].Subtract(card, 1)
		if err := g.tr.Discard(p, ResourceSet{card: 1}); err != nil {
			t.Fatalf("discard: %v", err)
		}
		return EventDiscard

	case 4: // build a road when the truth affords it
		cost, _ := BuildCost(BuildRoad)
		if !g.truth[p-1].SubtractSet(cost).IsValid() {
			return g.step(t)
		}
		g.truth[p-1] = g.truth[p-1].SubtractSet(cost)
		if err := g.tr.Build(p, BuildRoad); err != nil {
			t.Fatalf("build: %v", err)
		}
		return EventBuild

	default: // reveal the player's true hand size
		if err := g.tr.SetKnownTotal(p, g.truth[p-1].Total()); err != nil {
			t.Fatalf("known total: %v", err)
		}
		return EventKnownTotal
	}
}

// checkInvariants verifies probability conservation, non-negativity, and
// that the true state is still among the hypotheses.
func (g *simGame) checkInvariants(t *testing.T, step int) {
	t.Helper()
	sum := 0.0
	truthKey := (&World{hands: g.truth}).Key()
	foundTruth := false
	for _, w := range g.tr.worlds {
		sum += w.prob
		for pi := range g.truth {
			if !w.hands[pi].IsValid() {
				t.Fatalf("step %d: negative hand in surviving world", step)
			}
		}
		if w.Key() == truthKey {
			foundTruth = true
		}
	}
	if sum < 1-1e-6 || sum > 1+1e-6 {
		t.Fatalf("step %d: probabilities sum to %v", step, sum)
	}
	if !foundTruth {
		t.Fatalf("step %d: true state dropped from the distribution", step)
	}
	if g.tr.Resets() != 0 {
		t.Fatalf("step %d: truth-consistent events must never force a reset", step)
	}
}

func TestSimulation_TruthAlwaysSurvives(t *testing.T) {
	for _, seed := range []int64{1, 7, 42, 1337} {
		g := newSimGame(t, seed, 3)
		for i := 0; i < 60; i++ {
			g.step(t)
			g.checkInvariants(t, i)
		}

		// The truth hypothesis must be reachable through the marginals too:
		// every true count carries positive probability mass.
		for p := 1; p <= g.players; p++ {
			m, err := g.tr.Marginals(Player(p))
			if err != nil {
				t.Fatal(err)
			}
			for _, c := range Cards(VariantBase) {
				truthCount := g.truth[p-1].Get(c)
				if m.Cards[c].Dist[truthCount] <= 0 {
					t.Errorf("seed %d: player %d %s: true count %d has zero mass", seed, p, c, truthCount)
				}
				if truthCount < m.Cards[c].Min || truthCount > m.Cards[c].Max {
					t.Errorf("seed %d: player %d %s: true count %d outside [%d,%d]", seed, p, c, truthCount, m.Cards[c].Min, m.Cards[c].Max)
				}
			}
		}
	}
}

func TestSimulation_CitiesKnightsVariant(t *testing.T) {
	tr, err := New(2, VariantCitiesKnights)
	if err != nil {
		t.Fatal(err)
	}
	// Commodity production alongside base resources, then a steal across the
	// extended type set.
	if err := tr.Production(map[Player]ResourceSet{2: {Ore: 1, Coin: 1, Wool: 1, Cloth: 1}}); err != nil {
		t.Fatal(err)
	}
	if err := tr.Steal(1, 2); err != nil {
		t.Fatal(err)
	}
	if tr.WorldCount() != 4 {
		t.Fatalf("world count = %d, want 4 (one per held type)", tr.WorldCount())
	}

	m, err := tr.Marginals(2)
	if err != nil {
		t.Fatal(err)
	}
	if m.ExpectedBase+m.ExpectedCommodity != m.ExpectedTotal {
		t.Error("sub-range expectations should sum to the total")
	}
	if m.ExpectedCommodity <= 0 {
		t.Error("commodity expectation should be positive")
	}
}
