package geo

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

var nominatimBaseURL = "https://nominatim.openstreetmap.org/search"

type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// GeocodePlace resolves a free-form place name to a center coordinate
// using the OSM Nominatim API.
func GeocodePlace(place string) (lat, lng float64, err error) {
	u := nominatimBaseURL + "?" + url.Values{
		"q":      {place},
		"format": {"json"},
		"limit":  {"1"},
	}.Encode()

	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequest("GET", u, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "poiscan/0.1 (adaptive poi search)")

	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("geocoding returned status %d", resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return 0, 0, fmt.Errorf("decoding geocoding response: %w", err)
	}

	if len(results) == 0 {
		return 0, 0, fmt.Errorf("place %q not found", place)
	}

	lat, err = strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude from geocoder: %w", err)
	}
	lng, err = strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude from geocoder: %w", err)
	}

	return lat, lng, nil
}
