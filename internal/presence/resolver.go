package presence

import (
	"slices"
	"strings"

	"crewbot/internal/roster"
)

// Tier flags in priority order, the first one found in an entry wins.
// The position in this table is the sort rank
var tierPriority = []struct {
	flag           string
	classification Classification
}{
	{"leader", Member},
	{"officer", Member},
	{"member", Member},
	{"candidate", Candidate},
	{"trainee", Candidate},
}

var brackets = map[byte]byte{'[': ']', '(': ')', '{': '}'}

// The normalizer strips known bracketed tags from both ends of a
// display name and lower cases what is left
type Normalizer struct {
	tags map[string]struct{}
}

func NewNormalizer(tags []string) Normalizer {
	n := Normalizer{tags: make(map[string]struct{}, len(tags))}
	for _, tag := range tags {
		n.tags[strings.ToLower(strings.TrimSpace(tag))] = struct{}{}
	}
	return n
}

func (n Normalizer) Normalize(name string) string {
	s := strings.TrimSpace(name)
	for {
		stripped := n.stripPrefix(s)
		stripped = n.stripSuffix(stripped)
		if stripped == s || stripped == "" {
			break
		}
		s = stripped
	}
	return strings.ToLower(s)
}

func (n Normalizer) stripPrefix(s string) string {
	if len(s) == 0 {
		return s
	}
	closing, ok := brackets[s[0]]
	if !ok {
		return s
	}
	end := strings.IndexByte(s, closing)
	if end < 0 || !n.known(s[1:end]) {
		return s
	}
	return strings.TrimSpace(s[end+1:])
}

func (n Normalizer) stripSuffix(s string) string {
	if len(s) == 0 {
		return s
	}
	last := s[len(s)-1]
	for opening, closing := range brackets {
		if closing != last {
			continue
		}
		start := strings.LastIndexByte(s, opening)
		if start < 0 || !n.known(s[start+1:len(s)-1]) {
			return s
		}
		return strings.TrimSpace(s[:start])
	}
	return s
}

func (n Normalizer) known(tag string) bool {
	_, ok := n.tags[strings.ToLower(strings.TrimSpace(tag))]
	return ok
}

// Enrichment keyed by normalized display name
type Index map[string][]string

type Resolver struct {
	normalizer Normalizer
}

func NewResolver(tags []string) *Resolver {
	return &Resolver{NewNormalizer(tags)}
}

// Normalize the enrichment keys the same way display names are normalized.
// Entries colliding on the same normalized name have their flags merged
func (r *Resolver) Index(enrichment roster.Enrichment) Index {
	index := make(Index, len(enrichment))
	for name, metadata := range enrichment {
		key := r.normalizer.Normalize(name)
		for _, flag := range metadata.TierFlags {
			flag = strings.ToLower(strings.TrimSpace(flag))
			if !slices.Contains(index[key], flag) {
				index[key] = append(index[key], flag)
			}
		}
		if _, ok := index[key]; !ok {
			index[key] = []string{}
		}
	}
	return index
}

// Attach the classification of an identity. Pure function of its inputs
func (r *Resolver) Resolve(identity roster.OnlineIdentity, index Index) ResolvedPresence {
	resolved := ResolvedPresence{OnlineIdentity: identity, Classification: Unclassified}

	flags, ok := index[r.normalizer.Normalize(identity.DisplayName)]
	if !ok {
		return resolved
	}
	for rank, tier := range tierPriority {
		if slices.Contains(flags, tier.flag) {
			resolved.Classification = tier.classification
			resolved.SortRank = &rank
			break
		}
	}
	return resolved
}

// Deduplicate and resolve every identity of a tick
func (r *Resolver) ResolveAll(identities []roster.OnlineIdentity, enrichment roster.Enrichment) []ResolvedPresence {
	index := r.Index(enrichment)
	unique := Dedup(identities)
	resolved := make([]ResolvedPresence, 0, len(unique))
	for _, identity := range unique {
		resolved = append(resolved, r.Resolve(identity, index))
	}
	return resolved
}

// Keep the first occurrence of every raw id
func Dedup(identities []roster.OnlineIdentity) []roster.OnlineIdentity {
	seen := make(map[string]struct{}, len(identities))
	unique := make([]roster.OnlineIdentity, 0, len(identities))
	for _, identity := range identities {
		if _, ok := seen[identity.RawID]; ok {
			continue
		}
		seen[identity.RawID] = struct{}{}
		unique = append(unique, identity)
	}
	return unique
}
