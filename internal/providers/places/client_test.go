package places

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"studiofinder/suggestservice/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{APIKey: "test-key", BaseURL: server.URL, Client: server.Client()})
}

func TestClientUnavailableWithoutKey(t *testing.T) {
	client := NewClient(Config{})
	if client.IsAvailable() {
		t.Fatal("client without key must be unavailable")
	}
	if _, err := client.Autocomplete(context.Background(), AutocompleteRequest{Input: "leeds"}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := client.Geocode(context.Background(), "leeds"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClientAutocompleteBuildsRequest(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/place/autocomplete/json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"status":"OK","predictions":[
			{"place_id":"p1","description":"London, UK"},
			{"place_id":"","description":"missing id"},
			{"place_id":"p2","description":"Londonderry, UK"}
		]}`))
	})

	predictions, err := client.Autocomplete(context.Background(), AutocompleteRequest{
		Input:     "lond",
		Types:     "(cities)",
		Bias:      &domain.Coordinates{Lat: 51.5, Lng: -0.12},
		Countries: []string{"GB", "us"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(predictions) != 2 || predictions[0].PlaceID != "p1" {
		t.Fatalf("unexpected predictions: %+v", predictions)
	}
	for _, want := range []string{"input=lond", "types=%28cities%29", "radius=50000", "components=country%3Agb%7Ccountry%3Aus", "key=test-key"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestClientAutocompleteZeroResults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS","predictions":[]}`))
	})
	predictions, err := client.Autocomplete(context.Background(), AutocompleteRequest{Input: "qqqq"})
	if err != nil || len(predictions) != 0 {
		t.Fatalf("expected empty success, got %v %v", predictions, err)
	}
}

func TestClientAutocompleteProviderError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"REQUEST_DENIED","error_message":"bad key"}`))
	})
	_, err := client.Autocomplete(context.Background(), AutocompleteRequest{Input: "leeds"})
	if err == nil || !strings.Contains(err.Error(), "REQUEST_DENIED") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestClientHTTPError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})
	_, err := client.Details(context.Background(), "p1")
	if err == nil || !strings.Contains(err.Error(), "http 503") {
		t.Fatalf("expected http 503 error, got %v", err)
	}
}

func TestClientDetails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("place_id") != "p1" {
			t.Errorf("unexpected place id %q", r.URL.Query().Get("place_id"))
		}
		_, _ = w.Write([]byte(`{"status":"OK","result":{
			"name":"Abbey Road Studios",
			"formatted_address":"3 Abbey Rd, London NW8 9AY, UK",
			"geometry":{"location":{"lat":51.532,"lng":-0.1783}}
		}}`))
	})
	details, err := client.Details(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.Label() != "Abbey Road Studios, 3 Abbey Rd, London NW8 9AY, UK" {
		t.Fatalf("unexpected label %q", details.Label())
	}
	if details.Location.Lat != 51.532 || details.Location.Lng != -0.1783 {
		t.Fatalf("unexpected location %+v", details.Location)
	}
}

func TestClientGeocode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/geocode/json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("address") == "nowhere" {
			_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"OK","results":[
			{"formatted_address":"Manchester, UK","geometry":{"location":{"lat":53.48,"lng":-2.24}}}
		]}`))
	})

	result, err := client.Geocode(context.Background(), "manchester")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FormattedAddress != "Manchester, UK" || result.Location.Lat != 53.48 {
		t.Fatalf("unexpected result %+v", result)
	}
	if _, err := client.Geocode(context.Background(), "nowhere"); !errors.Is(err, ErrNoResults) {
		t.Fatalf("expected ErrNoResults, got %v", err)
	}
}

func TestPlaceDetailsLabel(t *testing.T) {
	cases := []struct {
		details PlaceDetails
		want    string
	}{
		{PlaceDetails{Name: "London", FormattedAddress: "London, UK"}, "London, UK"},
		{PlaceDetails{Name: "Soho", FormattedAddress: "London, UK"}, "Soho, London, UK"},
		{PlaceDetails{Name: "Soho"}, "Soho"},
		{PlaceDetails{FormattedAddress: "London, UK"}, "London, UK"},
	}
	for _, tc := range cases {
		if got := tc.details.Label(); got != tc.want {
			t.Errorf("Label() = %q, want %q", got, tc.want)
		}
	}
}

func TestBiasCell(t *testing.T) {
	if biasCell(nil) != "-" {
		t.Fatal("nil bias should map to placeholder")
	}
	if biasCell(&domain.Coordinates{Lat: 51.5, Lng: -0.12}) == "-" {
		t.Fatal("valid bias should map to a cell")
	}
}
