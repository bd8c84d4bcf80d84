// Package tracker maintains a probability distribution over the hidden card
// holdings of every player in a resource-trading game. The tracker consumes a
// strictly ordered stream of partially observed events (production, builds,
// trades, thefts, discards) and keeps a weighted set of Worlds — mutually
// exclusive hypotheses about the true hands — branching on uncertain events
// and collapsing again when later observations rule hypotheses out.
package tracker

import (
	"errors"
	"fmt"
)

// Variant selects the active card-type set.
type Variant string

const (
	// VariantBase uses the five base resource types.
	VariantBase Variant = "base"
	// VariantCitiesKnights adds the three commodity types.
	VariantCitiesKnights Variant = "cities_knights"
)

// NumCardTypes returns the number of card types in play for this variant.
func (v Variant) NumCardTypes() int {
	if v == VariantCitiesKnights {
		return numCards
	}
	return numBaseCards
}

// Card identifies one card type. The integer values define the canonical
// ordering used for hashing and serialization.
type Card uint8

const (
	Wood Card = iota
	Brick
	Wool
	Grain
	Ore
	// Commodities (cities & knights only). Each is produced as a byproduct
	// of one base resource: paper from wood, cloth from wool, coin from ore.
	Cloth
	Coin
	Paper

	numCards     = 8
	numBaseCards = 5
)

var cardNames = [numCards]string{"wood", "brick", "wool", "grain", "ore", "cloth", "coin", "paper"}

// IsCommodity reports whether c is one of the commodity types.
func (c Card) IsCommodity() bool { return c >= Cloth && c < numCards }

func (c Card) String() string {
	if int(c) < len(cardNames) {
		return cardNames[c]
	}
	return fmt.Sprintf("card(%d)", uint8(c))
}

// MarshalText encodes the card as its name, so map[Card]int JSON-encodes
// with readable keys in event records.
func (c Card) MarshalText() ([]byte, error) {
	if int(c) >= len(cardNames) {
		return nil, fmt.Errorf("unknown card type %d", uint8(c))
	}
	return []byte(cardNames[c]), nil
}

// UnmarshalText decodes a card from its name.
func (c *Card) UnmarshalText(text []byte) error {
	for i, name := range cardNames {
		if name == string(text) {
			*c = Card(i)
			return nil
		}
	}
	return fmt.Errorf("unknown card type %q", string(text))
}

// Supply is the fixed global number of each card type in circulation:
// holdings across all hands plus the bank remainder always sum to this.
func Supply(c Card) int {
	if c.IsCommodity() {
		return 12
	}
	return 19
}

// Cards returns the active card types for the variant, in canonical order.
func Cards(v Variant) []Card {
	n := v.NumCardTypes()
	cards := make([]Card, n)
	for i := range cards {
		cards[i] = Card(i)
	}
	return cards
}

// ResourceSet is a multiset of cards, keyed by type.
type ResourceSet map[Card]int

// Clone returns an independent copy of the set.
func (s ResourceSet) Clone() ResourceSet {
	if s == nil {
		return nil
	}
	c := make(ResourceSet, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// Total returns the number of cards in the set.
func (s ResourceSet) Total() int {
	n := 0
	for _, v := range s {
		n += v
	}
	return n
}

// BuildKind identifies a construction with a fixed, publicly known cost.
type BuildKind string

const (
	BuildRoad       BuildKind = "road"
	BuildSettlement BuildKind = "settlement"
	BuildCity       BuildKind = "city"
	BuildDevCard    BuildKind = "dev_card"
	// Cities & knights constructions.
	BuildCityWall BuildKind = "city_wall"
	BuildKnight   BuildKind = "knight"
)

var buildCosts = map[BuildKind]ResourceSet{
	BuildRoad:       {Wood: 1, Brick: 1},
	BuildSettlement: {Wood: 1, Brick: 1, Wool: 1, Grain: 1},
	BuildCity:       {Ore: 3, Grain: 2},
	BuildDevCard:    {Wool: 1, Grain: 1, Ore: 1},
	BuildCityWall:   {Brick: 2},
	BuildKnight:     {Wool: 1, Ore: 1},
}

// ErrUnknownBuildKind is returned when a build event names a construction
// that has no cost schedule. This is a caller error, not a filtering outcome.
var ErrUnknownBuildKind = errors.New("unknown build kind")

// BuildCost returns the cost of the given construction.
func BuildCost(kind BuildKind) (ResourceSet, error) {
	cost, ok := buildCosts[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBuildKind, kind)
	}
	return cost, nil
}
