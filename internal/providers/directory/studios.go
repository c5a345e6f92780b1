package directory

import (
	"context"
	"strings"

	"studiofinder/suggestservice/internal/domain"
	"studiofinder/suggestservice/internal/suggest"
)

type studioItem struct {
	ID          recordID            `json:"id"`
	Name        string              `json:"name"`
	City        string              `json:"city"`
	Username    string              `json:"username"`
	Coordinates *domain.Coordinates `json:"coordinates"`
}

type studiosResponse struct {
	Studios []studioItem `json:"studios"`
}

// StudioSource searches studio names. Only the hero variant registers it.
type StudioSource struct {
	client client
}

func NewStudioSource(cfg Config) *StudioSource {
	return &StudioSource{client: newClient(cfg)}
}

func (s *StudioSource) Name() string {
	return "studios"
}

func (s *StudioSource) Info() domain.SourceInfo {
	return domain.SourceInfo{
		Name:    s.Name(),
		Label:   "Studio names",
		Kind:    domain.SourceKindStudios,
		Enabled: s.client.enabled(),
	}
}

func (s *StudioSource) Suggest(ctx context.Context, query suggest.SourceQuery) ([]domain.SuggestionCandidate, error) {
	if !s.client.enabled() {
		return nil, nil
	}
	var response studiosResponse
	if err := s.client.search(ctx, studiosPath, query.Query, &response); err != nil {
		return nil, err
	}
	out := make([]domain.SuggestionCandidate, 0, len(response.Studios))
	for _, item := range response.Studios {
		if candidate, ok := studioCandidate(item); ok {
			out = append(out, candidate)
		}
	}
	return out, nil
}

// studioCandidate drops studios without an owner username: committing one
// opens the owner's profile and there would be nowhere to go.
func studioCandidate(item studioItem) (domain.SuggestionCandidate, bool) {
	name := strings.TrimSpace(item.Name)
	username := strings.TrimSpace(item.Username)
	if name == "" || username == "" {
		return domain.SuggestionCandidate{}, false
	}
	id := string(item.ID)
	if id == "" {
		id = username
	}
	candidate := domain.SuggestionCandidate{
		ID:   "studio:" + id,
		Text: name,
		Kind: domain.SuggestionKindStudio,
		Metadata: domain.SuggestionMetadata{
			StudioID: id,
			Username: username,
		},
	}
	if item.Coordinates != nil && item.Coordinates.Valid() {
		coords := *item.Coordinates
		candidate.Metadata.Coordinates = &coords
	}
	return candidate, true
}
