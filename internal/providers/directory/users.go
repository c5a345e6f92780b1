package directory

import (
	"context"
	"strings"

	"studiofinder/suggestservice/internal/domain"
	"studiofinder/suggestservice/internal/suggest"
)

type userItem struct {
	ID          recordID            `json:"id"`
	Username    string              `json:"username"`
	DisplayName string              `json:"display_name"`
	Location    string              `json:"location"`
	Coordinates *domain.Coordinates `json:"coordinates"`
}

type usersResponse struct {
	Users []userItem `json:"users"`
}

// UserSource searches the voice-artist directory.
type UserSource struct {
	client client
}

func NewUserSource(cfg Config) *UserSource {
	return &UserSource{client: newClient(cfg)}
}

func (s *UserSource) Name() string {
	return "users"
}

func (s *UserSource) Info() domain.SourceInfo {
	return domain.SourceInfo{
		Name:    s.Name(),
		Label:   "User directory",
		Kind:    domain.SourceKindUsers,
		Enabled: s.client.enabled(),
	}
}

func (s *UserSource) Suggest(ctx context.Context, query suggest.SourceQuery) ([]domain.SuggestionCandidate, error) {
	if !s.client.enabled() {
		return nil, nil
	}
	var response usersResponse
	if err := s.client.search(ctx, usersPath, query.Query, &response); err != nil {
		return nil, err
	}
	out := make([]domain.SuggestionCandidate, 0, len(response.Users))
	for _, item := range response.Users {
		if candidate, ok := userCandidate(item); ok {
			out = append(out, candidate)
		}
	}
	return out, nil
}

func userCandidate(item userItem) (domain.SuggestionCandidate, bool) {
	username := strings.TrimSpace(item.Username)
	if username == "" {
		return domain.SuggestionCandidate{}, false
	}
	text := strings.TrimSpace(item.DisplayName)
	if text == "" {
		text = username
	}
	id := string(item.ID)
	if id == "" {
		id = username
	}
	candidate := domain.SuggestionCandidate{
		ID:   "user:" + id,
		Text: text,
		Kind: domain.SuggestionKindUser,
		Metadata: domain.SuggestionMetadata{
			UserID:   id,
			Username: username,
		},
	}
	if item.Coordinates != nil && item.Coordinates.Valid() {
		coords := *item.Coordinates
		candidate.Metadata.Coordinates = &coords
	}
	return candidate, true
}
