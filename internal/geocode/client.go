// Package geocode resolves coordinates into Indonesian administrative
// area names. OpenCage is queried first; when it errors or returns too
// little, the Google geocoding API is the fallback. Both providers are
// idempotent reads, so callers may retry freely.
package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"encoding/json"

	"github.com/sirupsen/logrus"
)

// NotFound is the sentinel for a field the provider could not name.
const NotFound = "Tidak ditemukan"

// Failure sentinels stored when every provider failed outright.
const (
	FailedJalan     = "Gagal mendapatkan jalan"
	FailedKelurahan = "Gagal mendapatkan kelurahan"
	FailedKecamatan = "Gagal mendapatkan kecamatan"
	FailedKota      = "Gagal mendapatkan kota"
)

// Address is the administrative breakdown of a coordinate pair.
type Address struct {
	Jalan     string
	Kelurahan string
	Kecamatan string
	Kota      string
}

// Sufficient reports whether the lookup named at least a district or a
// city; anything less and the fallback provider is worth trying.
func (a Address) Sufficient() bool {
	return a.Kecamatan != NotFound || a.Kota != NotFound
}

// Client calls the reverse-geocoding providers.
type Client struct {
	OpenCageURL string
	OpenCageKey string
	GoogleURL   string
	GoogleKey   string
	HTTP        *http.Client

	// Static short-circuits network calls and returns a fixed address;
	// used in dev and tests.
	Static bool
}

// New creates a client with a bounded per-call timeout.
func New(openCageURL, openCageKey, googleURL, googleKey string, timeout time.Duration, static bool) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		OpenCageURL: openCageURL,
		OpenCageKey: openCageKey,
		GoogleURL:   googleURL,
		GoogleKey:   googleKey,
		Static:      static,
		HTTP:        &http.Client{Timeout: timeout},
	}
}

// Lookup resolves lat/lng into an Address. On total failure the returned
// Address carries the failure sentinels together with a non-nil error, so
// callers can degrade instead of branching on nil.
func (c *Client) Lookup(ctx context.Context, lat, lng float64) (Address, error) {
	if c.Static {
		return Address{
			Jalan:     "Jl. Statis No. 1",
			Kelurahan: "Pondok Labu",
			Kecamatan: "Cilandak",
			Kota:      "Jakarta Selatan",
		}, nil
	}

	addr, err := c.lookupOpenCage(ctx, lat, lng)
	if err == nil && addr.Sufficient() {
		return addr, nil
	}
	if err != nil {
		logrus.WithError(err).Debug("opencage lookup failed, trying google")
	} else {
		logrus.Debug("opencage data insufficient, trying google")
	}

	addr, gerr := c.lookupGoogle(ctx, lat, lng)
	if gerr == nil {
		return addr, nil
	}

	return Address{
		Jalan:     FailedJalan,
		Kelurahan: FailedKelurahan,
		Kecamatan: FailedKecamatan,
		Kota:      FailedKota,
	}, fmt.Errorf("geocode: all providers failed: opencage: %v; google: %w", err, gerr)
}

func (c *Client) lookupOpenCage(ctx context.Context, lat, lng float64) (Address, error) {
	q := url.Values{}
	q.Set("key", c.OpenCageKey)
	q.Set("q", fmt.Sprintf("%f,%f", lat, lng))
	q.Set("no_annotations", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.OpenCageURL+"?"+q.Encode(), nil)
	if err != nil {
		return Address{}, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Address{}, fmt.Errorf("opencage request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return Address{}, fmt.Errorf("opencage error: %s", resp.Status)
	}

	var out struct {
		Results []struct {
			Components map[string]string `json:"components"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Address{}, fmt.Errorf("opencage decode failed: %w", err)
	}
	if len(out.Results) == 0 {
		return Address{}, fmt.Errorf("opencage returned no results")
	}

	comp := out.Results[0].Components
	return Address{
		Jalan:     firstOf(comp, "road", "street"),
		Kelurahan: firstOf(comp, "suburb", "municipality", "village"),
		Kecamatan: firstOf(comp, "city_district", "county", "state_district"),
		Kota:      firstOf(comp, "city", "town", "state"),
	}, nil
}

func (c *Client) lookupGoogle(ctx context.Context, lat, lng float64) (Address, error) {
	q := url.Values{}
	q.Set("latlng", fmt.Sprintf("%f,%f", lat, lng))
	q.Set("key", c.GoogleKey)
	q.Set("language", "id")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.GoogleURL+"?"+q.Encode(), nil)
	if err != nil {
		return Address{}, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Address{}, fmt.Errorf("google request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return Address{}, fmt.Errorf("google error: %s", resp.Status)
	}

	var out struct {
		Results []struct {
			AddressComponents []struct {
				LongName string   `json:"long_name"`
				Types    []string `json:"types"`
			} `json:"address_components"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Address{}, fmt.Errorf("google decode failed: %w", err)
	}

	addr := Address{Jalan: NotFound, Kelurahan: NotFound, Kecamatan: NotFound, Kota: NotFound}
	if len(out.Results) == 0 {
		return addr, nil
	}

	for _, comp := range out.Results[0].AddressComponents {
		for _, typ := range comp.Types {
			switch typ {
			case "route":
				addr.Jalan = comp.LongName
			case "sublocality_level_1", "locality":
				addr.Kelurahan = comp.LongName
			case "administrative_area_level_3":
				addr.Kecamatan = comp.LongName
			case "administrative_area_level_2":
				addr.Kota = comp.LongName
			}
		}
	}
	return addr, nil
}

// firstOf picks the first present, non-empty key from components.
func firstOf(comp map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := comp[k]; v != "" {
			return v
		}
	}
	return NotFound
}
