// Agent spawning: name sampling for a new roster.
package agents

import (
	"errors"
	"fmt"
	"math/rand"
)

// ErrNamePool is returned when more distinct names are requested than exist.
var ErrNamePool = errors.New("name pool exhausted")

// Spawner draws names for a new roster.
type Spawner struct {
	rng *rand.Rand
}

// NewSpawner creates an agent spawner with the given seed.
func NewSpawner(seed int64) *Spawner {
	return &Spawner{rng: rand.New(rand.NewSource(seed + 300))}
}

// Names draws n distinct "First Last" names without replacement.
func (s *Spawner) Names(n int) ([]string, error) {
	pool := namePool()
	if n > len(pool) {
		return nil, fmt.Errorf("%d names requested, %d available: %w", n, len(pool), ErrNamePool)
	}
	s.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	return pool[:n], nil
}

func namePool() []string {
	firsts := make([]string, 0, len(maleNames)+len(femaleNames))
	firsts = append(firsts, maleNames...)
	firsts = append(firsts, femaleNames...)

	pool := make([]string, 0, len(firsts)*len(lastNames))
	for _, f := range firsts {
		for _, l := range lastNames {
			pool = append(pool, f+" "+l)
		}
	}
	return pool
}

// Name pools for procedural generation.
var maleNames = []string{
	"Aldric", "Bram", "Cedric", "Doran", "Erik", "Finn", "Gareth",
	"Halvard", "Ivan", "Jasper", "Kael", "Leif", "Magnus", "Nils",
	"Oswin", "Per", "Quinn", "Rowan", "Stellan", "Theron", "Ulric",
	"Varen", "Wren", "Yorick", "Zander", "Arlen", "Beric", "Cade",
	"Dorian", "Edric", "Falk", "Gunnar", "Hugo", "Ivar", "Jorik",
}

var femaleNames = []string{
	"Astrid", "Brenna", "Calla", "Daria", "Elara", "Freya", "Greta",
	"Helene", "Iris", "Juno", "Kira", "Lena", "Mira", "Nessa",
	"Olwen", "Petra", "Runa", "Senna", "Thea", "Una", "Vera",
	"Willa", "Yara", "Zara", "Ava", "Birgit", "Cora", "Dagny",
	"Eira", "Fern", "Gwen", "Hilde", "Inga", "Johanna", "Katla",
}

var lastNames = []string{
	"Voss", "Thornwood", "Blackwood", "Ashford", "Ironhand", "Dunmore",
	"Greenvale", "Stormcrow", "Frostborn", "Hearthstone", "Millward",
	"Copperfield", "Ravenmoor", "Silverdale", "Wolfsbane", "Stoneheart",
	"Deepwell", "Brightwater", "Oakenshield", "Redforge", "Windholm",
	"Marshwood", "Goldhaven", "Nightingale", "Riverstone", "Steelworth",
	"Embercroft", "Holloway", "Dawnridge", "Farrow", "Wyatt", "Thatcher",
	"Briar", "Caldwell", "Frost", "Harper", "Mercer", "Ward", "Cross",
}
