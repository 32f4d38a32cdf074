// Package cards holds the static catalog of challenge cards dealt to players.
package cards

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// Card is an immutable challenge card. Hands and challenges hold pointers into
// the catalog, never copies.
type Card struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

var ErrNotEnoughCards = errors.New("not enough cards in catalog")

// Catalog is an ordered, read-only collection of cards. It is safe for
// concurrent use since nothing mutates it after construction.
type Catalog struct {
	cards []*Card
}

// NewCatalog builds a catalog from definitions, rejecting empty text and
// duplicate ids.
func NewCatalog(defs []Card) (*Catalog, error) {
	seen := make(map[string]struct{}, len(defs))
	c := &Catalog{cards: make([]*Card, 0, len(defs))}
	for i, d := range defs {
		d.ID = strings.TrimSpace(d.ID)
		if d.ID == "" {
			d.ID = fmt.Sprintf("card-%d", i+1)
		}
		if strings.TrimSpace(d.Text) == "" {
			return nil, fmt.Errorf("card %s has no text", d.ID)
		}
		if _, dup := seen[d.ID]; dup {
			return nil, fmt.Errorf("duplicate card id %s", d.ID)
		}
		seen[d.ID] = struct{}{}
		card := d
		c.cards = append(c.cards, &card)
	}
	return c, nil
}

// Len returns the number of cards in the catalog.
func (c *Catalog) Len() int {
	return len(c.cards)
}

// Cards returns the catalog in its defined order.
func (c *Catalog) Cards() []*Card {
	out := make([]*Card, len(c.cards))
	copy(out, c.cards)
	return out
}

// Draw returns n distinct cards: a uniform random permutation of the catalog,
// truncated to its first n entries.
func (c *Catalog) Draw(n int) ([]*Card, error) {
	if n < 0 || n > len(c.cards) {
		return nil, fmt.Errorf("%w: want %d, have %d", ErrNotEnoughCards, n, len(c.cards))
	}
	perm := rand.Perm(len(c.cards))
	hand := make([]*Card, n)
	for i := 0; i < n; i++ {
		hand[i] = c.cards[perm[i]]
	}
	return hand, nil
}

// Default returns the built-in deck.
func Default() *Catalog {
	c, err := NewCatalog(defaultDeck)
	if err != nil {
		panic(err)
	}
	return c
}

var defaultDeck = []Card{
	{ID: "sing", Text: "Sing the chorus of a song everyone knows"},
	{ID: "accent", Text: "Speak in a different accent until your next turn"},
	{ID: "impression", Text: "Do an impression of another player"},
	{ID: "dance", Text: "Show us your best dance move for ten seconds"},
	{ID: "tongue-twister", Text: "Say a tongue twister three times fast"},
	{ID: "story", Text: "Tell a story using only questions"},
	{ID: "compliment", Text: "Give a sincere compliment to every player"},
	{ID: "alphabet", Text: "Recite the alphabet backwards"},
	{ID: "rhyme", Text: "Make up a four line rhyme about the room"},
	{ID: "mime", Text: "Mime an everyday task until someone guesses it"},
	{ID: "no-smile", Text: "Keep a straight face while everyone tries to make you laugh"},
	{ID: "commercial", Text: "Pitch a random object as if it were a TV commercial"},
	{ID: "animal", Text: "Act like an animal chosen by the challenger"},
	{ID: "secret", Text: "Share a harmless secret nobody here knows"},
	{ID: "statue", Text: "Hold a statue pose for thirty seconds"},
}
