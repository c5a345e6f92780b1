package places

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/uber/h3-go/v4"

	"studiofinder/suggestservice/internal/domain"
	"studiofinder/suggestservice/internal/suggest"
)

const (
	defaultBaseURL   = "https://maps.googleapis.com/maps/api"
	defaultUserAgent = "studiofinder-suggest/1.0"
	redisCacheKey    = "suggest:places:"
	biasResolution   = 5
	detailsFields    = "place_id,name,formatted_address,geometry"
)

// Client talks to the Google Places and Geocoding web services.
type Client struct {
	apiKey    string
	baseURL   string
	userAgent string
	http      *http.Client
	redis     *redis.Client
	cacheTTL  time.Duration
}

type Config struct {
	APIKey    string
	BaseURL   string
	UserAgent string
	Client    *http.Client
	Redis     *redis.Client
	CacheTTL  time.Duration
}

type statusEnvelope struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

type autocompleteResponse struct {
	statusEnvelope
	Predictions []Prediction `json:"predictions"`
}

type geometry struct {
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
}

type detailsResponse struct {
	statusEnvelope
	Result struct {
		PlaceID          string   `json:"place_id"`
		Name             string   `json:"name"`
		FormattedAddress string   `json:"formatted_address"`
		Geometry         geometry `json:"geometry"`
	} `json:"result"`
}

type geocodeResponse struct {
	statusEnvelope
	Results []struct {
		FormattedAddress string   `json:"formatted_address"`
		Geometry         geometry `json:"geometry"`
	} `json:"results"`
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 24 * time.Hour
	}
	return &Client{
		apiKey:    strings.TrimSpace(cfg.APIKey),
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		http:      httpClient,
		redis:     cfg.Redis,
		cacheTTL:  cacheTTL,
	}
}

func (c *Client) IsAvailable() bool {
	return c != nil && c.apiKey != ""
}

func (c *Client) Autocomplete(ctx context.Context, request AutocompleteRequest) ([]Prediction, error) {
	if !c.IsAvailable() {
		return nil, ErrUnavailable
	}
	input := strings.TrimSpace(request.Input)
	params := url.Values{
		"input": {input},
		"key":   {c.apiKey},
	}
	if request.Types != "" {
		params.Set("types", request.Types)
	}
	if request.Bias != nil && request.Bias.Valid() {
		params.Set("location", fmt.Sprintf("%f,%f", request.Bias.Lat, request.Bias.Lng))
		radius := request.RadiusMeters
		if radius <= 0 {
			radius = DefaultBiasRadiusMeters
		}
		params.Set("radius", strconv.Itoa(radius))
	}
	if len(request.Countries) > 0 {
		components := make([]string, 0, len(request.Countries))
		for _, country := range request.Countries {
			components = append(components, "country:"+strings.ToLower(country))
		}
		params.Set("components", strings.Join(components, "|"))
	}

	cacheKey := fmt.Sprintf("ac:%s:%s:%s:%s",
		strings.ToLower(input), request.Types, params.Get("components"), biasCell(request.Bias))
	var cached []Prediction
	if c.cacheGet(ctx, cacheKey, &cached) {
		return cached, nil
	}

	var response autocompleteResponse
	if err := c.getJSON(ctx, "/place/autocomplete/json", params, &response); err != nil {
		return nil, err
	}
	if err := checkStatus(response.statusEnvelope); err != nil {
		return nil, err
	}
	predictions := make([]Prediction, 0, len(response.Predictions))
	for _, prediction := range response.Predictions {
		if strings.TrimSpace(prediction.PlaceID) == "" || strings.TrimSpace(prediction.Description) == "" {
			continue
		}
		predictions = append(predictions, prediction)
	}
	c.cacheSet(ctx, cacheKey, predictions)
	return predictions, nil
}

func (c *Client) Details(ctx context.Context, placeID string) (PlaceDetails, error) {
	if !c.IsAvailable() {
		return PlaceDetails{}, ErrUnavailable
	}
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return PlaceDetails{}, fmt.Errorf("places details: empty place id")
	}

	cacheKey := "details:" + placeID
	var cached PlaceDetails
	if c.cacheGet(ctx, cacheKey, &cached) {
		return cached, nil
	}

	var response detailsResponse
	params := url.Values{
		"place_id": {placeID},
		"fields":   {detailsFields},
		"key":      {c.apiKey},
	}
	if err := c.getJSON(ctx, "/place/details/json", params, &response); err != nil {
		return PlaceDetails{}, err
	}
	if err := checkStatus(response.statusEnvelope); err != nil {
		return PlaceDetails{}, err
	}
	details := PlaceDetails{
		PlaceID:          placeID,
		Name:             strings.TrimSpace(response.Result.Name),
		FormattedAddress: strings.TrimSpace(response.Result.FormattedAddress),
		Location: domain.Coordinates{
			Lat: response.Result.Geometry.Location.Lat,
			Lng: response.Result.Geometry.Location.Lng,
		},
	}
	c.cacheSet(ctx, cacheKey, details)
	return details, nil
}

func (c *Client) Geocode(ctx context.Context, address string) (GeocodeResult, error) {
	if !c.IsAvailable() {
		return GeocodeResult{}, ErrUnavailable
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return GeocodeResult{}, ErrNoResults
	}

	cacheKey := "geocode:" + strings.ToLower(address)
	var cached GeocodeResult
	if c.cacheGet(ctx, cacheKey, &cached) {
		return cached, nil
	}

	var response geocodeResponse
	params := url.Values{
		"address": {address},
		"key":     {c.apiKey},
	}
	if err := c.getJSON(ctx, "/geocode/json", params, &response); err != nil {
		return GeocodeResult{}, err
	}
	if err := checkStatus(response.statusEnvelope); err != nil {
		return GeocodeResult{}, err
	}
	if len(response.Results) == 0 {
		return GeocodeResult{}, ErrNoResults
	}
	first := response.Results[0]
	result := GeocodeResult{
		FormattedAddress: strings.TrimSpace(first.FormattedAddress),
		Location: domain.Coordinates{
			Lat: first.Geometry.Location.Lat,
			Lng: first.Geometry.Location.Lng,
		},
	}
	c.cacheSet(ctx, cacheKey, result)
	return result, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, target any) error {
	reqURL := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &suggest.HTTPStatusError{Upstream: "places", Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("places decode: %w", err)
	}
	return nil
}

// checkStatus maps the provider's in-body status to an error. ZERO_RESULTS
// is a successful empty answer for autocomplete and details.
func checkStatus(envelope statusEnvelope) error {
	switch envelope.Status {
	case "", "OK", "ZERO_RESULTS":
		return nil
	default:
		if envelope.ErrorMessage != "" {
			return fmt.Errorf("places status %s: %s", envelope.Status, envelope.ErrorMessage)
		}
		return fmt.Errorf("places status %s", envelope.Status)
	}
}

func (c *Client) cacheGet(ctx context.Context, key string, target any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, redisCacheKey+key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, target) == nil
}

func (c *Client) cacheSet(ctx context.Context, key string, value any) {
	if c.redis == nil {
		return
	}
	if data, err := json.Marshal(value); err == nil {
		_ = c.redis.Set(ctx, redisCacheKey+key, data, c.cacheTTL).Err()
	}
}

// biasCell buckets the bias location so nearby users share cached
// autocomplete answers.
func biasCell(bias *domain.Coordinates) string {
	if bias == nil || !bias.Valid() {
		return "-"
	}
	cell, err := h3.LatLngToCell(h3.NewLatLng(bias.Lat, bias.Lng), biasResolution)
	if err != nil {
		return "-"
	}
	return strconv.FormatInt(int64(cell), 16)
}
