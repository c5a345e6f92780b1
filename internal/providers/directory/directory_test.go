package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"studiofinder/suggestservice/internal/domain"
	"studiofinder/suggestservice/internal/suggest"
)

func TestUserSourceMapsDirectoryResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != usersPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("q") != "joe" {
			t.Errorf("unexpected query %q", r.URL.Query().Get("q"))
		}
		_, _ = w.Write([]byte(`{"users":[
			{"id":"42","username":"joe_vo","display_name":"Joe Bloggs","coordinates":{"lat":51.5,"lng":-0.1}},
			{"id":"43","username":"joey"},
			{"id":"44","display_name":"No Username"}
		]}`))
	}))
	defer server.Close()

	source := NewUserSource(Config{BaseURL: server.URL, Client: server.Client()})
	items, err := source.Suggest(context.Background(), suggest.SourceQuery{Query: " joe "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []domain.SuggestionCandidate{
		{
			ID:   "user:42",
			Text: "Joe Bloggs",
			Kind: domain.SuggestionKindUser,
			Metadata: domain.SuggestionMetadata{
				UserID:      "42",
				Username:    "joe_vo",
				Coordinates: &domain.Coordinates{Lat: 51.5, Lng: -0.1},
			},
		},
		{
			ID:       "user:43",
			Text:     "joey",
			Kind:     domain.SuggestionKindUser,
			Metadata: domain.SuggestionMetadata{UserID: "43", Username: "joey"},
		},
	}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Fatalf("unexpected candidates (-want +got):\n%s", diff)
	}
}

func TestStudioSourceMapsDirectoryResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != studiosPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"studios":[
			{"id":"s1","name":"The Booth","city":"Leeds","username":"booth_leeds"},
			{"id":"s2","name":"Orphan Studio"}
		]}`))
	}))
	defer server.Close()

	source := NewStudioSource(Config{BaseURL: server.URL, Client: server.Client()})
	items, err := source.Suggest(context.Background(), suggest.SourceQuery{Query: "booth"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 studio, got %+v", items)
	}
	if items[0].Kind != domain.SuggestionKindStudio || items[0].Metadata.Username != "booth_leeds" || items[0].ID != "studio:s1" {
		t.Fatalf("unexpected studio candidate %+v", items[0])
	}
}

func TestDirectoryAcceptsNumericIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"users":[
			{"id":42,"username":"joe_vo"},
			{"id":9007199254740993,"username":"big_id"},
			{"id":null,"username":"no_id"},
			{"id":{"oid":"x"},"username":"odd_id"}
		]}`))
	}))
	defer server.Close()

	source := NewUserSource(Config{BaseURL: server.URL, Client: server.Client()})
	items, err := source.Suggest(context.Background(), suggest.SourceQuery{Query: "joe"})
	if err != nil {
		t.Fatalf("numeric ids must not fail the source: %v", err)
	}
	var ids []string
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	want := []string{"user:42", "user:9007199254740993", "user:no_id", "user:odd_id"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Fatalf("unexpected ids (-want +got):\n%s", diff)
	}
}

func TestDirectoryHTTPErrorIsReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	source := NewUserSource(Config{BaseURL: server.URL, Client: server.Client()})
	_, err := source.Suggest(context.Background(), suggest.SourceQuery{Query: "joe"})
	if err == nil || !strings.Contains(err.Error(), "http 502") {
		t.Fatalf("expected http 502 error, got %v", err)
	}
}

func TestDirectoryDisabledWithoutBaseURL(t *testing.T) {
	users := NewUserSource(Config{})
	studios := NewStudioSource(Config{})
	if users.Info().Enabled || studios.Info().Enabled {
		t.Fatal("sources without base url must report disabled")
	}
	items, err := users.Suggest(context.Background(), suggest.SourceQuery{Query: "joe"})
	if err != nil || len(items) != 0 {
		t.Fatalf("expected empty result, got %v %v", items, err)
	}
}
