package tracker

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

const probTolerance = 1e-9

// Config bounds the tracker's resource usage and calibrates its heuristics.
type Config struct {
	// MaxWorlds caps the number of retained worlds. After pruning, only the
	// highest-probability worlds up to this cap survive.
	MaxWorlds int
	// MinProb is the minimum probability a world must keep to survive
	// merge-and-prune.
	MinProb float64
	// MaxCountCeiling is the assumed per-type count ceiling used to
	// normalize the entropy-based confidence heuristic.
	MaxCountCeiling int
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{MaxWorlds: 1000, MinProb: 0.0001, MaxCountCeiling: 8}
}

// ErrInvalidPlayer is returned when an event names a player outside 1..N.
var ErrInvalidPlayer = errors.New("invalid player id")

// Tracker is the belief engine. It owns an ordered collection of Worlds
// forming a discrete probability distribution, applies event handlers that
// update, branch, or filter that collection, and answers marginal queries.
//
// All methods must be called from a single goroutine (or externally
// serialized): handlers read-then-write the world collection with no internal
// locking.
type Tracker struct {
	players int
	variant Variant
	cfg     Config

	worlds      []*World
	knownTotals map[Player]int
	bank        ResourceSet // nil until a bank snapshot is registered

	turn   int
	resets int
	events []Event
}

// New creates a tracker for the given player count with default limits.
func New(players int, variant Variant) (*Tracker, error) {
	return NewWithConfig(players, variant, DefaultConfig())
}

// NewWithConfig creates a tracker with explicit limits. The initial belief is
// a single world in which every player holds nothing.
func NewWithConfig(players int, variant Variant, cfg Config) (*Tracker, error) {
	if players < 1 {
		return nil, fmt.Errorf("player count must be positive, got %d", players)
	}
	if variant != VariantBase && variant != VariantCitiesKnights {
		return nil, fmt.Errorf("unknown variant %q", variant)
	}
	if cfg.MaxWorlds < 1 {
		cfg.MaxWorlds = DefaultConfig().MaxWorlds
	}
	if cfg.MinProb <= 0 {
		cfg.MinProb = DefaultConfig().MinProb
	}
	if cfg.MaxCountCeiling < 1 {
		cfg.MaxCountCeiling = DefaultConfig().MaxCountCeiling
	}
	return &Tracker{
		players:     players,
		variant:     variant,
		cfg:         cfg,
		worlds:      []*World{NewWorld(players, variant, 1)},
		knownTotals: make(map[Player]int),
	}, nil
}

// Players returns the player count.
func (t *Tracker) Players() int { return t.players }

// Variant returns the active card-type set.
func (t *Tracker) Variant() Variant { return t.variant }

// Turn returns the number of events applied so far.
func (t *Tracker) Turn() int { return t.turn }

// WorldCount returns the number of surviving hypotheses.
func (t *Tracker) WorldCount() int { return len(t.worlds) }

// Resets returns how many times the engine fell back to a recovery world
// because an event or constraint was inconsistent with every hypothesis.
// A non-zero value means information was discarded; the belief state after a
// reset is best-effort, not sound.
func (t *Tracker) Resets() int { return t.resets }

// Events returns the append-only event log, including reset records. The
// returned slice is a copy; replaying it through a fresh tracker reproduces
// the current belief state.
func (t *Tracker) Events() []Event {
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

func (t *Tracker) constraints() constraints {
	return constraints{knownTotals: t.knownTotals, bank: t.bank, variant: t.variant}
}

func (t *Tracker) checkPlayer(p Player) error {
	if int(p) < 1 || int(p) > t.players {
		return fmt.Errorf("%w: %d (players 1..%d)", ErrInvalidPlayer, p, t.players)
	}
	return nil
}

// checkSet rejects structurally malformed card sets: negative amounts or
// types outside the active variant.
func (t *Tracker) checkSet(s ResourceSet) error {
	for c, amt := range s {
		if int(c) >= t.variant.NumCardTypes() {
			return fmt.Errorf("card type %s not in variant %s", c, t.variant)
		}
		if amt < 0 {
			return fmt.Errorf("negative amount %d for card type %s", amt, c)
		}
	}
	return nil
}

// record appends a structured event to the log and advances the turn
// counter. Every handler records before mutating the world collection.
func (t *Tracker) record(e Event) {
	t.turn++
	e.Seq = len(t.events) + 1
	e.Turn = t.turn
	t.events = append(t.events, e)
}

// recordReset appends a reset marker without advancing the turn counter, so
// the escape-valve fallbacks are observable in the log and in snapshots.
func (t *Tracker) recordReset(reason string) {
	t.resets++
	t.events = append(t.events, Event{
		Seq:    len(t.events) + 1,
		Turn:   t.turn,
		Type:   EventReset,
		Reason: reason,
	})
}

// normalize rescales world probabilities to sum to 1. Handlers never rely on
// preserving exact sums themselves; this runs after every mutating call to
// bound floating-point drift. A non-positive sum is left untouched (it cannot
// occur under correct operation, and rescaling by it would be worse).
func (t *Tracker) normalize() {
	sum := 0.0
	for _, w := range t.worlds {
		sum += w.prob
	}
	if sum <= 0 {
		return
	}
	if math.Abs(sum-1) < probTolerance {
		return
	}
	for _, w := range t.worlds {
		w.prob /= sum
	}
}

// mergeAndPrune combines structurally equal worlds (summing probability,
// keeping first-encounter order), drops worlds below the probability floor,
// caps the collection at MaxWorlds by descending probability, and
// renormalizes. Runs after every branching or filtering operation.
func (t *Tracker) mergeAndPrune() {
	if len(t.worlds) > 1 {
		seen := make(map[string]*World, len(t.worlds))
		merged := t.worlds[:0]
		for _, w := range t.worlds {
			k := w.Key()
			if prev, ok := seen[k]; ok {
				prev.prob += w.prob
				continue
			}
			seen[k] = w
			merged = append(merged, w)
		}
		t.worlds = merged
	}

	if len(t.worlds) > 1 {
		kept := t.worlds[:0]
		best := t.worlds[0]
		for _, w := range t.worlds {
			if w.prob > best.prob {
				best = w
			}
			if w.prob >= t.cfg.MinProb {
				kept = append(kept, w)
			}
		}
		if len(kept) == 0 {
			kept = append(kept, best)
		}
		t.worlds = kept
	}

	if len(t.worlds) > t.cfg.MaxWorlds {
		sort.SliceStable(t.worlds, func(i, j int) bool {
			return t.worlds[i].prob > t.worlds[j].prob
		})
		t.worlds = t.worlds[:t.cfg.MaxWorlds]
	}

	t.normalize()
}

// fallbackFirst is the escape valve for events inconsistent with every
// world: retain the prior first world, untouched, with probability 1. This
// deliberately discards information instead of leaving the distribution
// empty; the reset record makes it observable.
func (t *Tracker) fallbackFirst(prior []*World, reason string) {
	w := prior[0]
	w.prob = 1
	t.worlds = []*World{w}
	t.recordReset(reason)
}

// fallbackZero is the escape valve for constraints inconsistent with every
// world: reset the belief to a single freshly zeroed world. Registered
// constraints are discarded with the worlds: the zeroed world cannot satisfy
// them, and re-checking them on the next event would only force another reset.
func (t *Tracker) fallbackZero(reason string) {
	t.worlds = []*World{NewWorld(t.players, t.variant, 1)}
	t.knownTotals = make(map[Player]int)
	t.bank = nil
	t.recordReset(reason)
}

// filterInvalid re-evaluates every world against the current constraints and
// drops the failures. Used when a constraint is registered or tightened.
func (t *Tracker) filterInvalid(reason string) {
	c := t.constraints()
	kept := t.worlds[:0]
	for _, w := range t.worlds {
		if w.isValid(c) {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		t.fallbackZero(reason)
	} else {
		t.worlds = kept
	}
	t.normalize()
	t.mergeAndPrune()
}
