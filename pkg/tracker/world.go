package tracker

import "strings"

// Player identifies a player, 1..N.
type Player int

// World is one hypothesis about the complete hidden state: a Hand for every
// player plus the probability that this hypothesis is the true one. The
// tracker's World collection forms a discrete distribution. Worlds are
// mutated only through the tracker's copy-on-write operations; after a
// branch, no Hand is shared between Worlds (Hand is a value type).
type World struct {
	hands []Hand // index player-1
	prob  float64
}

// NewWorld returns a world with an empty hand for every player and the given
// probability.
func NewWorld(players int, v Variant, prob float64) *World {
	hands := make([]Hand, players)
	for i := range hands {
		hands[i] = NewHand(v)
	}
	return &World{hands: hands, prob: prob}
}

// Clone returns an independent deep copy.
func (w *World) Clone() *World {
	hands := make([]Hand, len(w.hands))
	copy(hands, w.hands)
	return &World{hands: hands, prob: w.prob}
}

// Probability returns the weight of this hypothesis.
func (w *World) Probability() float64 { return w.prob }

// HandOf returns the hand held by the given player.
func (w *World) HandOf(p Player) Hand {
	return w.hands[p-1]
}

func (w *World) setHand(p Player, h Hand) {
	w.hands[p-1] = h
}

// Key returns a canonical serialization of all hands in player order, stable
// regardless of map iteration order, used to merge structurally equal worlds.
func (w *World) Key() string {
	var b strings.Builder
	for i, h := range w.hands {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(h.Key())
	}
	return b.String()
}

// Equal reports structural equality of all hands (probability excluded).
func (w *World) Equal(o *World) bool {
	if len(w.hands) != len(o.hands) {
		return false
	}
	for i := range w.hands {
		if !w.hands[i].Equal(o.hands[i]) {
			return false
		}
	}
	return true
}

// constraints are the cross-cutting predicates evaluated against every world:
// known exact hand totals per player, and the visible bank remainder per card
// type (card conservation).
type constraints struct {
	knownTotals map[Player]int
	bank        ResourceSet
	variant     Variant
}

// isValid reports whether the world is consistent: every hand individually
// valid, every known per-player total matched, and — when a bank snapshot is
// registered — holdings plus bank equal to the fixed supply for every type.
func (w *World) isValid(c constraints) bool {
	for _, h := range w.hands {
		if !h.IsValid() {
			return false
		}
	}
	for p, total := range c.knownTotals {
		if int(p) < 1 || int(p) > len(w.hands) {
			continue
		}
		if w.HandOf(p).Total() != total {
			return false
		}
	}
	if c.bank != nil {
		for _, card := range Cards(c.variant) {
			held := 0
			for _, h := range w.hands {
				held += h.Get(card)
			}
			if held+c.bank[card] != Supply(card) {
				return false
			}
		}
	}
	return true
}
