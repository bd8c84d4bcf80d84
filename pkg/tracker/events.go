package tracker

import "fmt"

// EventType tags an entry in the tracker's event log.
type EventType string

const (
	EventProduction  EventType = "production"
	EventBuild       EventType = "build"
	EventBankTrade   EventType = "bank_trade"
	EventPlayerTrade EventType = "player_trade"
	EventSteal       EventType = "steal"
	EventKnownSteal  EventType = "known_steal"
	EventDiscard     EventType = "discard"
	EventMonopoly    EventType = "monopoly"
	EventGrant       EventType = "grant"
	EventMultiGift   EventType = "multi_gift"
	EventKnownTotal  EventType = "known_total"
	EventKnownBank   EventType = "known_bank"
	// EventReset marks an escape-valve fallback: an event or constraint was
	// inconsistent with every world and the distribution was forcibly
	// recovered. Informational; skipped on replay.
	EventReset EventType = "reset"
)

// Event is one structured entry in the append-only log. Fields are populated
// per type; unused fields stay zero. The log is JSON-serializable and
// replaying it through a fresh tracker reproduces the belief state.
type Event struct {
	Seq  int       `json:"seq"`
	Turn int       `json:"turn"`
	Type EventType `json:"type"`

	Player Player    `json:"player,omitempty"` // actor / receiver / collector / thief
	Target Player    `json:"target,omitempty"` // victim / trade partner
	Card   *Card     `json:"card,omitempty"`   // known-steal and monopoly card type
	Kind   BuildKind `json:"kind,omitempty"`

	Give    ResourceSet            `json:"give,omitempty"`
	Receive ResourceSet            `json:"receive,omitempty"`
	Gains   map[Player]ResourceSet `json:"gains,omitempty"`   // production
	Amounts map[Player]int         `json:"amounts,omitempty"` // monopoly
	Gifts   map[Player]ResourceSet `json:"gifts,omitempty"`   // multi-gift
	Total   int                    `json:"total,omitempty"`   // known-total
	Bank    ResourceSet            `json:"bank,omitempty"`    // known-bank

	Reason string `json:"reason,omitempty"` // reset
}

// Apply dispatches a logged event back into the tracker. It is the replay
// entry point: feeding a recorded log through Apply on a fresh tracker
// rebuilds the same belief state. Reset records are informational and
// ignored.
func (t *Tracker) Apply(e Event) error {
	switch e.Type {
	case EventProduction:
		return t.Production(e.Gains)
	case EventBuild:
		return t.Build(e.Player, e.Kind)
	case EventBankTrade:
		return t.BankTrade(e.Player, e.Give, e.Receive)
	case EventPlayerTrade:
		return t.PlayerTrade(e.Player, e.Give, e.Target, e.Receive)
	case EventSteal:
		return t.Steal(e.Player, e.Target)
	case EventKnownSteal:
		if e.Card == nil {
			return fmt.Errorf("%s event missing card type", e.Type)
		}
		return t.KnownSteal(e.Player, e.Target, *e.Card)
	case EventDiscard:
		return t.Discard(e.Player, e.Give)
	case EventMonopoly:
		if e.Card == nil {
			return fmt.Errorf("%s event missing card type", e.Type)
		}
		return t.Monopoly(e.Player, *e.Card, e.Amounts)
	case EventGrant:
		return t.Grant(e.Player, e.Receive)
	case EventMultiGift:
		return t.MultiGift(e.Player, e.Gifts)
	case EventKnownTotal:
		return t.SetKnownTotal(e.Player, e.Total)
	case EventKnownBank:
		return t.SetKnownBank(e.Bank)
	case EventReset:
		return nil
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
}

// Production adds the stated resources to each named player in every world.
// If a bank snapshot is tracked, the produced cards are debited from it.
// Fully observed and always consistent: the world count never changes.
func (t *Tracker) Production(gains map[Player]ResourceSet) error {
	for p, set := range gains {
		if err := t.checkPlayer(p); err != nil {
			return err
		}
		if err := t.checkSet(set); err != nil {
			return err
		}
	}
	t.record(Event{Type: EventProduction, Gains: gains})

	for _, w := range t.worlds {
		for p, set := range gains {
			w.setHand(p, w.HandOf(p).AddSet(set))
		}
	}
	if t.bank != nil {
		for _, set := range gains {
			t.debitBank(set)
		}
	}
	for p, set := range gains {
		t.shiftKnownTotal(p, set.Total())
	}
	t.normalize()
	t.mergeAndPrune()
	return nil
}

// Build deducts the construction's cost from the player in every world that
// can pay it. An observed build is a proof of existence: worlds that cannot
// afford the cost are impossible and are dropped. If no world can pay, the
// prior first world is retained untouched as a best-effort recovery.
func (t *Tracker) Build(p Player, kind BuildKind) error {
	if err := t.checkPlayer(p); err != nil {
		return err
	}
	cost, err := BuildCost(kind)
	if err != nil {
		return err
	}
	t.record(Event{Type: EventBuild, Player: p, Kind: kind})

	resets := t.resets
	t.filterMutate(func(w *World) bool {
		h := w.HandOf(p).SubtractSet(cost)
		if !h.IsValid() {
			return false
		}
		w.setHand(p, h)
		return true
	}, "no world could afford build "+string(kind))
	if t.resets == resets {
		if t.bank != nil {
			t.creditBank(cost)
		}
		t.shiftKnownTotal(p, -cost.Total())
	}
	return nil
}

// BankTrade subtracts the give set and adds the receive set for one player.
// Worlds where the give set is not held are dropped; if that empties the
// collection the prior first world is retained.
func (t *Tracker) BankTrade(p Player, give, receive ResourceSet) error {
	if err := t.checkPlayer(p); err != nil {
		return err
	}
	if err := t.checkSet(give); err != nil {
		return err
	}
	if err := t.checkSet(receive); err != nil {
		return err
	}
	t.record(Event{Type: EventBankTrade, Player: p, Give: give, Receive: receive})

	resets := t.resets
	t.filterMutate(func(w *World) bool {
		h := w.HandOf(p).SubtractSet(give)
		if !h.IsValid() {
			return false
		}
		w.setHand(p, h.AddSet(receive))
		return true
	}, "no world could afford bank trade")
	if t.resets == resets {
		if t.bank != nil {
			t.creditBank(give)
			t.debitBank(receive)
		}
		t.shiftKnownTotal(p, receive.Total()-give.Total())
	}
	return nil
}

// PlayerTrade applies a mutual exchange: a gives giveA to b, b gives giveB
// to a. Both sides are validated before either side is applied; worlds where
// either player lacks their give set are dropped.
func (t *Tracker) PlayerTrade(a Player, giveA ResourceSet, b Player, giveB ResourceSet) error {
	if err := t.checkPlayer(a); err != nil {
		return err
	}
	if err := t.checkPlayer(b); err != nil {
		return err
	}
	if err := t.checkSet(giveA); err != nil {
		return err
	}
	if err := t.checkSet(giveB); err != nil {
		return err
	}
	t.record(Event{Type: EventPlayerTrade, Player: a, Give: giveA, Target: b, Receive: giveB})

	resets := t.resets
	t.filterMutate(func(w *World) bool {
		ha := w.HandOf(a).SubtractSet(giveA)
		hb := w.HandOf(b).SubtractSet(giveB)
		if !ha.IsValid() || !hb.IsValid() {
			return false
		}
		w.setHand(a, ha.AddSet(giveB))
		w.setHand(b, hb.AddSet(giveA))
		return true
	}, "no world could satisfy player trade")
	if t.resets == resets {
		t.shiftKnownTotal(a, giveB.Total()-giveA.Total())
		t.shiftKnownTotal(b, giveA.Total()-giveB.Total())
	}
	return nil
}

// Discard removes the stated set from the player's hand. Worlds where the
// player does not hold the set are dropped.
func (t *Tracker) Discard(p Player, set ResourceSet) error {
	if err := t.checkPlayer(p); err != nil {
		return err
	}
	if err := t.checkSet(set); err != nil {
		return err
	}
	t.record(Event{Type: EventDiscard, Player: p, Give: set})

	resets := t.resets
	t.filterMutate(func(w *World) bool {
		h := w.HandOf(p).SubtractSet(set)
		if !h.IsValid() {
			return false
		}
		w.setHand(p, h)
		return true
	}, "no world could satisfy discard")
	if t.resets == resets {
		if t.bank != nil {
			t.creditBank(set)
		}
		t.shiftKnownTotal(p, -set.Total())
	}
	return nil
}

// Monopoly moves the stated amount of one card type from each victim to the
// collector. The amounts are publicly announced, so worlds where a victim
// does not hold the stated amount are impossible.
func (t *Tracker) Monopoly(collector Player, card Card, amounts map[Player]int) error {
	if err := t.checkPlayer(collector); err != nil {
		return err
	}
	if int(card) >= t.variant.NumCardTypes() {
		return fmt.Errorf("card type %s not in variant %s", card, t.variant)
	}
	total := 0
	for p, amt := range amounts {
		if err := t.checkPlayer(p); err != nil {
			return err
		}
		if amt < 0 {
			return fmt.Errorf("negative monopoly amount %d for player %d", amt, p)
		}
		total += amt
	}
	t.record(Event{Type: EventMonopoly, Player: collector, Card: &card, Amounts: amounts})

	resets := t.resets
	t.filterMutate(func(w *World) bool {
		next := make(map[Player]Hand, len(amounts))
		for p, amt := range amounts {
			h := w.HandOf(p).Subtract(card, amt)
			if !h.IsValid() {
				return false
			}
			next[p] = h
		}
		for p, h := range next {
			w.setHand(p, h)
		}
		w.setHand(collector, w.HandOf(collector).Add(card, total))
		return true
	}, "no world could satisfy monopoly")
	if t.resets == resets {
		for p, amt := range amounts {
			t.shiftKnownTotal(p, -amt)
		}
		t.shiftKnownTotal(collector, total)
	}
	return nil
}

// Grant adds a bank-sourced set to the player. The bank is assumed
// sufficient, so no validation or filtering happens.
func (t *Tracker) Grant(p Player, set ResourceSet) error {
	if err := t.checkPlayer(p); err != nil {
		return err
	}
	if err := t.checkSet(set); err != nil {
		return err
	}
	t.record(Event{Type: EventGrant, Player: p, Receive: set})

	for _, w := range t.worlds {
		w.setHand(p, w.HandOf(p).AddSet(set))
	}
	if t.bank != nil {
		t.debitBank(set)
	}
	t.shiftKnownTotal(p, set.Total())
	t.normalize()
	t.mergeAndPrune()
	return nil
}

// MultiGift transfers a stated set from each giver to the receiver. The
// transfer is all-or-nothing per world: if any single giver cannot pay, the
// whole transfer is skipped in that world and the world survives unchanged.
func (t *Tracker) MultiGift(receiver Player, gifts map[Player]ResourceSet) error {
	if err := t.checkPlayer(receiver); err != nil {
		return err
	}
	for p, set := range gifts {
		if err := t.checkPlayer(p); err != nil {
			return err
		}
		if err := t.checkSet(set); err != nil {
			return err
		}
	}
	t.record(Event{Type: EventMultiGift, Player: receiver, Gifts: gifts})

	for _, w := range t.worlds {
		next := make(map[Player]Hand, len(gifts))
		ok := true
		for p, set := range gifts {
			h := w.HandOf(p).SubtractSet(set)
			if !h.IsValid() {
				ok = false
				break
			}
			next[p] = h
		}
		if !ok {
			continue
		}
		recv := w.HandOf(receiver)
		for p, h := range next {
			w.setHand(p, h)
			recv = recv.AddSet(gifts[p])
		}
		w.setHand(receiver, recv)
	}
	// The transfer applies in some worlds and not others, so every involved
	// player's hand size is no longer uniform across worlds.
	t.forgetKnownTotal(receiver)
	for p := range gifts {
		t.forgetKnownTotal(p)
	}
	t.normalize()
	t.mergeAndPrune()
	return nil
}

// Steal branches the belief on an unobserved theft: for every card type the
// victim holds in a world, a child world is emitted in which that type moved,
// weighted by the victim's holdings. A world where the victim holds nothing
// carries over unchanged. The parent world is replaced by its children.
func (t *Tracker) Steal(thief, victim Player) error {
	if err := t.checkPlayer(thief); err != nil {
		return err
	}
	if err := t.checkPlayer(victim); err != nil {
		return err
	}
	t.record(Event{Type: EventSteal, Player: thief, Target: victim})

	var next []*World
	for _, w := range t.worlds {
		next = append(next, branchSteal(w, thief, victim)...)
	}
	t.worlds = next
	// Whether a card actually moved depends on the victim's hand, so neither
	// player's hand size is known anymore.
	t.forgetKnownTotal(thief, victim)
	t.normalize()
	t.mergeAndPrune()
	return nil
}

// branchSteal enumerates the successor worlds of one unobserved theft. Pure:
// the parent is never modified, and the children share no hands with it.
func branchSteal(w *World, thief, victim Player) []*World {
	vh := w.HandOf(victim)
	total := vh.Total()
	if total == 0 {
		return []*World{w}
	}
	var children []*World
	for i := 0; i < vh.n; i++ {
		c := Card(i)
		count := vh.Get(c)
		if count == 0 {
			continue
		}
		child := w.Clone()
		child.prob = w.prob * float64(count) / float64(total)
		child.setHand(victim, child.HandOf(victim).Subtract(c, 1))
		child.setHand(thief, child.HandOf(thief).Add(c, 1))
		children = append(children, child)
	}
	return children
}

// DoubleSteal applies two sequential unobserved thefts from the same victim,
// compounding the branching.
func (t *Tracker) DoubleSteal(thief, victim Player) error {
	if err := t.Steal(thief, victim); err != nil {
		return err
	}
	return t.Steal(thief, victim)
}

// KnownSteal handles a theft whose stolen card type was actually observed:
// a deterministic single-card transfer. Worlds where the victim does not
// hold the card are dropped.
func (t *Tracker) KnownSteal(thief, victim Player, card Card) error {
	if err := t.checkPlayer(thief); err != nil {
		return err
	}
	if err := t.checkPlayer(victim); err != nil {
		return err
	}
	if int(card) >= t.variant.NumCardTypes() {
		return fmt.Errorf("card type %s not in variant %s", card, t.variant)
	}
	t.record(Event{Type: EventKnownSteal, Player: thief, Target: victim, Card: &card})

	resets := t.resets
	t.filterMutate(func(w *World) bool {
		h := w.HandOf(victim).Subtract(card, 1)
		if !h.IsValid() {
			return false
		}
		w.setHand(victim, h)
		w.setHand(thief, w.HandOf(thief).Add(card, 1))
		return true
	}, "no world held the stolen card")
	if t.resets == resets {
		t.shiftKnownTotal(thief, 1)
		t.shiftKnownTotal(victim, -1)
	}
	return nil
}

// SetKnownTotal registers an externally observed exact hand size for a
// player and drops worlds that contradict it. If every world contradicts it,
// the belief resets to a single zeroed world.
//
// The total is carried forward as a live constraint: deterministic events
// (production, builds, trades, discards, known steals) shift it in step with
// the player's hand size, and events that change the hand size by an
// unobserved amount (unobserved steals, conditional gifts) drop it.
func (t *Tracker) SetKnownTotal(p Player, total int) error {
	if err := t.checkPlayer(p); err != nil {
		return err
	}
	if total < 0 {
		return fmt.Errorf("negative known total %d for player %d", total, p)
	}
	t.record(Event{Type: EventKnownTotal, Player: p, Total: total})

	t.knownTotals[p] = total
	t.filterInvalid(fmt.Sprintf("no world matched known total %d for player %d", total, p))
	return nil
}

// SetKnownBank registers a fully visible bank snapshot and drops worlds that
// violate card conservation against it. If every world violates it, the
// belief resets to a single zeroed world.
//
// The snapshot is carried forward: later events that move cards to or from
// the bank adjust it, so conservation stays checkable between observations.
func (t *Tracker) SetKnownBank(bank ResourceSet) error {
	if err := t.checkSet(bank); err != nil {
		return err
	}
	t.record(Event{Type: EventKnownBank, Bank: bank})

	t.bank = bank.Clone()
	t.filterInvalid("no world consistent with bank snapshot")
	return nil
}

// filterMutate applies mutate to every world, keeping those for which it
// returns true. mutate must leave the world untouched when it returns false.
// If no world survives, the prior first world is retained untouched.
func (t *Tracker) filterMutate(mutate func(w *World) bool, resetReason string) {
	prior := t.worlds
	kept := make([]*World, 0, len(t.worlds))
	for _, w := range t.worlds {
		if mutate(w) {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		t.fallbackFirst(prior, resetReason)
	} else {
		t.worlds = kept
	}
	t.normalize()
	t.mergeAndPrune()
}

// debitBank removes cards leaving the bank (production, grants, bank-trade
// receives) from the tracked snapshot, flooring at zero; conservation
// violations surface later through world filtering, not here.
func (t *Tracker) debitBank(set ResourceSet) {
	for c, amt := range set {
		rem := t.bank[c] - amt
		if rem < 0 {
			rem = 0
		}
		t.bank[c] = rem
	}
}

// creditBank returns cards entering the bank (build costs, discards,
// bank-trade gives) to the tracked snapshot, so the conservation constraint
// stays satisfiable between bank observations.
func (t *Tracker) creditBank(set ResourceSet) {
	for c, amt := range set {
		t.bank[c] += amt
	}
}

// shiftKnownTotal moves a registered exact-total constraint in step with a
// deterministic change to the player's hand size. No-op when no total is
// registered for the player.
func (t *Tracker) shiftKnownTotal(p Player, delta int) {
	if total, ok := t.knownTotals[p]; ok {
		t.knownTotals[p] = total + delta
	}
}

// forgetKnownTotal drops exact-total constraints for players whose hand size
// just changed by a world-dependent amount.
func (t *Tracker) forgetKnownTotal(players ...Player) {
	for _, p := range players {
		delete(t.knownTotals, p)
	}
}
