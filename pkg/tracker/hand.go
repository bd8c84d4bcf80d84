package tracker

import "strconv"

// Hand is one player's card holdings: a fixed-width vector of counts in
// canonical card order. Hand is a value type — Add and Subtract return a new
// Hand and never touch the receiver — so Worlds can share nothing after a
// copy. A Hand may transiently hold negative counts (a speculative
// subtraction); IsValid is the separate predicate the tracker checks before
// keeping such a Hand.
type Hand struct {
	counts [numCards]int
	n      int // active card types for the variant
}

// NewHand returns an empty hand for the given variant.
func NewHand(v Variant) Hand {
	return Hand{n: v.NumCardTypes()}
}

// Get returns the count for a card type, or 0 if the type is not part of the
// active variant.
func (h Hand) Get(c Card) int {
	if int(c) >= h.n {
		return 0
	}
	return h.counts[c]
}

// Add returns a copy of the hand with amount added to the given type.
// Types outside the active variant are ignored.
func (h Hand) Add(c Card, amount int) Hand {
	if int(c) >= h.n {
		return h
	}
	h.counts[c] += amount
	return h
}

// Subtract returns a copy of the hand with amount removed from the given type.
func (h Hand) Subtract(c Card, amount int) Hand {
	return h.Add(c, -amount)
}

// AddSet returns a copy of the hand with every entry of the set added.
func (h Hand) AddSet(s ResourceSet) Hand {
	for c, amt := range s {
		h = h.Add(c, amt)
	}
	return h
}

// SubtractSet returns a copy of the hand with every entry of the set removed.
func (h Hand) SubtractSet(s ResourceSet) Hand {
	for c, amt := range s {
		h = h.Add(c, -amt)
	}
	return h
}

// Total returns the number of cards in the hand.
func (h Hand) Total() int {
	n := 0
	for i := 0; i < h.n; i++ {
		n += h.counts[i]
	}
	return n
}

// BaseTotal returns the number of base resource cards in the hand.
func (h Hand) BaseTotal() int {
	n := 0
	for i := 0; i < h.n && i < numBaseCards; i++ {
		n += h.counts[i]
	}
	return n
}

// CommodityTotal returns the number of commodity cards in the hand.
func (h Hand) CommodityTotal() int {
	n := 0
	for i := numBaseCards; i < h.n; i++ {
		n += h.counts[i]
	}
	return n
}

// IsValid reports whether every count is non-negative.
func (h Hand) IsValid() bool {
	for i := 0; i < h.n; i++ {
		if h.counts[i] < 0 {
			return false
		}
	}
	return true
}

// Equal reports structural equality.
func (h Hand) Equal(o Hand) bool {
	if h.n != o.n {
		return false
	}
	for i := 0; i < h.n; i++ {
		if h.counts[i] != o.counts[i] {
			return false
		}
	}
	return true
}

// Key returns a canonical serialization of the hand (counts in card order),
// stable across runs, usable as a merge key.
func (h Hand) Key() string {
	buf := make([]byte, 0, h.n*3)
	for i := 0; i < h.n; i++ {
		if i > 0 {
			buf = append(buf, '.')
		}
		buf = strconv.AppendInt(buf, int64(h.counts[i]), 10)
	}
	return string(buf)
}

// Counts returns a card→count view of the hand for reporting. Zero counts
// are included so callers see every active type.
func (h Hand) Counts() map[Card]int {
	m := make(map[Card]int, h.n)
	for i := 0; i < h.n; i++ {
		m[Card(i)] = h.counts[i]
	}
	return m
}
