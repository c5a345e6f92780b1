package places

import (
	"context"
	"errors"

	"studiofinder/suggestservice/internal/domain"
)

var (
	ErrUnavailable = errors.New("places provider unavailable")
	ErrNoResults   = errors.New("places: no results")
)

// Capability is the external places provider. IsAvailable reports whether
// it is configured; callers that get false must not call the other methods.
type Capability interface {
	IsAvailable() bool
	Autocomplete(ctx context.Context, request AutocompleteRequest) ([]Prediction, error)
	Details(ctx context.Context, placeID string) (PlaceDetails, error)
	Geocode(ctx context.Context, address string) (GeocodeResult, error)
}

type AutocompleteRequest struct {
	Input        string
	Types        string
	Bias         *domain.Coordinates
	RadiusMeters int
	Countries    []string
}

type Prediction struct {
	PlaceID     string `json:"place_id"`
	Description string `json:"description"`
}

type PlaceDetails struct {
	PlaceID          string             `json:"placeId"`
	Name             string             `json:"name"`
	FormattedAddress string             `json:"formattedAddress"`
	Location         domain.Coordinates `json:"location"`
}

// Label is the canonical display text: the place name followed by its
// formatted address, without repeating the name when the address already
// starts with it.
func (d PlaceDetails) Label() string {
	switch {
	case d.Name == "":
		return d.FormattedAddress
	case d.FormattedAddress == "":
		return d.Name
	case len(d.FormattedAddress) >= len(d.Name) && d.FormattedAddress[:len(d.Name)] == d.Name:
		return d.FormattedAddress
	default:
		return d.Name + ", " + d.FormattedAddress
	}
}

type GeocodeResult struct {
	FormattedAddress string             `json:"formattedAddress"`
	Location         domain.Coordinates `json:"location"`
}
