package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/rendis/poiscan/internal/model"
)

const (
	placesBaseURL = "https://places.googleapis.com/v1/places:searchNearby"

	// The Nearby Search (New) endpoint returns at most 20 places per call.
	placesMaxResults = 20

	defaultQPS = 8.0

	maxRetries   = 3
	baseBackoff  = 2 * time.Second
	maxBackoff   = 30 * time.Second
	jitterFactor = 0.5
)

// fieldMask lists the place fields requested from the provider. Billing is
// per field group, so only what the engine consumes is asked for.
const fieldMask = "places.id,places.displayName,places.primaryTypeDisplayName," +
	"places.location,places.rating,places.userRatingCount," +
	"places.regularOpeningHours.weekdayDescriptions,places.googleMapsUri"

// PlacesClient queries the Google Places Nearby Search (New) endpoint.
type PlacesClient struct {
	http     *http.Client
	apiKey   string
	baseURL  string
	capacity int
	limiter  *rate.Limiter
	backoff  time.Duration
}

// NewPlacesClient builds a client. capacity is clamped to the provider's
// 20-result ceiling; qps caps outbound request rate.
func NewPlacesClient(apiKey string, capacity int, qps float64) *PlacesClient {
	if capacity <= 0 || capacity > placesMaxResults {
		capacity = placesMaxResults
	}
	if qps <= 0 {
		qps = defaultQPS
	}
	return &PlacesClient{
		http:     &http.Client{Timeout: 15 * time.Second},
		apiKey:   apiKey,
		baseURL:  placesBaseURL,
		capacity: capacity,
		limiter:  rate.NewLimiter(rate.Limit(qps), 1),
		backoff:  baseBackoff,
	}
}

func (c *PlacesClient) Capacity() int { return c.capacity }

type nearbyRequest struct {
	IncludedTypes       []string            `json:"includedTypes,omitempty"`
	MaxResultCount      int                 `json:"maxResultCount"`
	LocationRestriction locationRestriction `json:"locationRestriction"`
}

type locationRestriction struct {
	Circle circle `json:"circle"`
}

type circle struct {
	Center latLng  `json:"center"`
	Radius float64 `json:"radius"`
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type nearbyResponse struct {
	Places []placeResult `json:"places"`
}

type placeResult struct {
	ID                     string        `json:"id"`
	DisplayName            localizedText `json:"displayName"`
	PrimaryTypeDisplayName localizedText `json:"primaryTypeDisplayName"`
	Location               latLng        `json:"location"`
	Rating                 float64       `json:"rating"`
	UserRatingCount        int           `json:"userRatingCount"`
	RegularOpeningHours    openingHours  `json:"regularOpeningHours"`
	GoogleMapsURI          string        `json:"googleMapsUri"`
}

type localizedText struct {
	Text string `json:"text"`
}

type openingHours struct {
	WeekdayDescriptions []string `json:"weekdayDescriptions"`
}

// SearchNearby performs one bounded query with retry and exponential backoff
// on rate limiting. Auth and transport failures are returned immediately.
func (c *PlacesClient) SearchNearby(ctx context.Context, req SearchRequest) ([]model.Place, error) {
	payload, err := json.Marshal(nearbyRequest{
		IncludedTypes:  req.Categories,
		MaxResultCount: c.capacity,
		LocationRestriction: locationRestriction{Circle: circle{
			Center: latLng{Latitude: req.Lat, Longitude: req.Lng},
			Radius: req.RadiusM,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	var lastErr error
	for attempt := range maxRetries {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		places, err := c.doRequest(ctx, payload)
		if err == nil {
			return places, nil
		}
		lastErr = err

		if _, ok := err.(*RateLimitError); !ok {
			return nil, err
		}

		backoff := c.backoff * time.Duration(1<<uint(attempt))
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		jitter := time.Duration(float64(backoff) * jitterFactor * rand.Float64())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff + jitter):
		}
	}

	return nil, lastErr
}

func (c *PlacesClient) doRequest(ctx context.Context, payload []byte) ([]model.Place, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", c.apiKey)
	httpReq.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{StatusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{StatusCode: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var nr nearbyResponse
	if err := json.NewDecoder(resp.Body).Decode(&nr); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	places := make([]model.Place, 0, len(nr.Places))
	for _, p := range nr.Places {
		if p.ID == "" {
			continue
		}
		places = append(places, model.Place{
			ID:           p.ID,
			Name:         p.DisplayName.Text,
			Category:     p.PrimaryTypeDisplayName.Text,
			Lat:          p.Location.Latitude,
			Lng:          p.Location.Longitude,
			Rating:       p.Rating,
			ReviewCount:  p.UserRatingCount,
			WeekdayHours: p.RegularOpeningHours.WeekdayDescriptions,
			MapsURL:      p.GoogleMapsURI,
		})
	}
	return places, nil
}
