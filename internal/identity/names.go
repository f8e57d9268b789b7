package identity

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"regexp"
)

// nameSyntax is the two-phase naming policy's syntactic check (spec §4.2):
// CamelCase Adjective+Noun, e.g. GoldFox.
var nameSyntax = regexp.MustCompile(`^[A-Z][a-z]+[A-Z][a-z]+$`)

// adjectives and nouns are the closed lexical vocabularies (spec §9 Open
// Question, resolved here): the first CamelCase segment of a valid agent
// name must be a member of adjectives, the second of nouns (GoldFox,
// BlueLake, SilverWolf valid; EaglePeak invalid because Eagle is a noun,
// not an adjective) with enough headroom that create_agent_identity
// rarely collides.
var adjectives = []string{
	"Gold", "Silver", "Bronze", "Blue", "Red", "Green", "Crimson", "Amber",
	"Violet", "Scarlet", "Indigo", "Emerald", "Sapphire", "Copper", "Iron",
	"Steel", "Stone", "Shadow", "Bright", "Dark", "Swift", "Quiet", "Bold",
	"Calm", "Sharp", "Quick", "Deep", "High", "Low", "Wild", "Lone", "Grand",
	"Noble", "Fierce", "Gentle", "Brave", "Clever", "Wise", "Keen", "Proud",
	"Rapid", "Frozen", "Burning", "Silent", "Hidden", "Ancient", "Young",
	"Autumn", "Winter", "Summer", "Spring",
}

var nouns = []string{
	"Fox", "Wolf", "Lake", "River", "Mountain", "Falcon", "Hawk", "Raven",
	"Otter", "Badger", "Heron", "Lynx", "Panther", "Tiger", "Bear", "Stag",
	"Owl", "Crane", "Dolphin", "Whale", "Sparrow", "Finch", "Robin", "Wren",
	"Cliff", "Canyon", "Valley", "Forest", "Meadow", "Harbor", "Island",
	"Glacier", "Desert", "Prairie", "Summit", "Ridge", "Delta", "Bay",
	"Cove", "Marsh", "Reef", "Spring", "Brook", "Comet", "Star", "Moon",
	"Ember", "Storm", "Tide", "Dune",
}

var (
	adjectiveSet = toSet(adjectives)
	nounSet      = toSet(nouns)
)

func toSet(words []string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// ValidateAgentName runs the full two-phase check (spec §4.2: "EaglePeak"
// is rejected because "Eagle" is a noun, not an adjective, even though it
// is syntactically well-formed CamelCase).
func ValidateAgentName(name string) error {
	if !nameSyntax.MatchString(name) {
		return fmt.Errorf("name %q must match ^[A-Z][a-z]+[A-Z][a-z]+$", name)
	}
	adj, noun := splitCamel(name)
	if !adjectiveSet[adj] {
		return fmt.Errorf("name %q invalid: %q is not a known adjective", name, adj)
	}
	if !nounSet[noun] {
		return fmt.Errorf("name %q invalid: %q is not a known noun", name, noun)
	}
	return nil
}

// splitCamel splits an AdjectiveNoun name at the second capital letter.
func splitCamel(name string) (adj string, noun string) {
	for i := 1; i < len(name); i++ {
		if name[i] >= 'A' && name[i] <= 'Z' {
			return name[:i], name[i:]
		}
	}
	return name, ""
}

// GenerateCandidateName deterministically proposes an AdjectiveNoun name for
// create_agent_identity, seeded from (program, model, attempt) so repeated
// calls with the same inputs always propose the same candidate before
// uniqueness is checked against the project (spec §4.2: "deterministic
// sequence keyed by (program, model, attempt)"). Deterministic-from-seed
// selection via fnv hashing, not a random UUID, so retries are stable.
func GenerateCandidateName(program, model string, attempt int) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(fmt.Sprintf("%s:%s:%d", program, model, attempt)))
	seed := h.Sum64()
	r := rand.New(rand.NewSource(int64(seed)))
	return adjectives[r.Intn(len(adjectives))] + nouns[r.Intn(len(nouns))]
}
