package suggest

import (
	"cmp"
	"sort"
	"strings"

	"studiofinder/suggestservice/internal/domain"
)

// MaxSuggestions caps every ranked list.
const MaxSuggestions = 8

type RankOptions struct {
	BoostStudios bool
}

const (
	matchPrefix   = 0
	matchContains = 1
	matchNone     = 2
)

// Rank dedupes candidates by case-insensitive text (first occurrence wins),
// orders them and truncates to MaxSuggestions. The input slice is not modified.
func Rank(candidates []domain.SuggestionCandidate, query string, opts RankOptions) []domain.SuggestionCandidate {
	unique := dedupeCandidates(candidates)
	if len(unique) == 0 {
		return []domain.SuggestionCandidate{}
	}

	needle := matchKey(query)
	keys := make([]string, len(unique))
	tiers := make([]int, len(unique))
	for i, candidate := range unique {
		keys[i] = matchKey(candidate.Text)
		tiers[i] = matchTier(keys[i], needle)
	}

	order := make([]int, len(unique))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return compareCandidates(unique[order[a]], unique[order[b]], tiers[order[a]], tiers[order[b]], keys[order[a]], keys[order[b]], opts) < 0
	})

	limit := len(order)
	if limit > MaxSuggestions {
		limit = MaxSuggestions
	}
	ranked := make([]domain.SuggestionCandidate, 0, limit)
	for _, index := range order[:limit] {
		ranked = append(ranked, unique[index])
	}
	return ranked
}

func dedupeCandidates(candidates []domain.SuggestionCandidate) []domain.SuggestionCandidate {
	seen := make(map[string]struct{}, len(candidates))
	unique := make([]domain.SuggestionCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		if strings.TrimSpace(candidate.Text) == "" {
			continue
		}
		key := dedupeKey(candidate.Text)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, candidate)
	}
	return unique
}

func matchTier(text, needle string) int {
	if needle == "" {
		return matchNone
	}
	switch {
	case strings.HasPrefix(text, needle):
		return matchPrefix
	case strings.Contains(text, needle):
		return matchContains
	default:
		return matchNone
	}
}

func compareCandidates(left, right domain.SuggestionCandidate, leftTier, rightTier int, leftKey, rightKey string, opts RankOptions) int {
	switch {
	case left.DistanceKm != nil && right.DistanceKm == nil:
		return -1
	case left.DistanceKm == nil && right.DistanceKm != nil:
		return 1
	case left.DistanceKm != nil && right.DistanceKm != nil:
		if order := cmp.Compare(*left.DistanceKm, *right.DistanceKm); order != 0 {
			return order
		}
	}

	if opts.BoostStudios {
		leftStudio := left.Kind == domain.SuggestionKindStudio
		rightStudio := right.Kind == domain.SuggestionKindStudio
		if leftStudio != rightStudio {
			if leftStudio {
				return -1
			}
			return 1
		}
	}

	if order := cmp.Compare(leftTier, rightTier); order != 0 {
		return order
	}
	return strings.Compare(leftKey, rightKey)
}

// annotateDistances measures every candidate that carries coordinates from
// location and clears the distance of every other one.
func annotateDistances(candidates []domain.SuggestionCandidate, location *domain.UserLocation) {
	for i := range candidates {
		candidates[i].DistanceKm = nil
		coords := candidates[i].Metadata.Coordinates
		if location == nil || coords == nil {
			continue
		}
		distance := domain.DistanceKm(location.Coordinates(), *coords)
		candidates[i].DistanceKm = &distance
	}
}
