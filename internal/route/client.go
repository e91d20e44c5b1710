package route

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/neexbeast/campusnav/internal/campus"
	"github.com/neexbeast/campusnav/internal/geo"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 4 << 20

	// DefaultBaseURL is the OpenRouteService walking directions endpoint.
	DefaultBaseURL = "https://api.openrouteservice.org/v2/directions/foot-walking"
)

// Client fetches walking routes from an OpenRouteService-style API.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewClient constructs a Client. An empty baseURL uses DefaultBaseURL and
// a non-positive timeout uses 10 seconds.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{apiKey: apiKey, baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

func lonLat(c geo.Coordinate) string {
	return strconv.FormatFloat(c.Lon, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lat, 'f', -1, 64)
}

// Route returns the polyline from one point to another. Transport failures
// and non-2xx responses wrap campus.ErrNetwork; a body without a LineString
// in features[0] wraps campus.ErrJSONShape.
func (c *Client) Route(ctx context.Context, from, to geo.Coordinate) ([]geo.Coordinate, error) {
	endpoint := c.baseURL + "?api_key=" + url.QueryEscape(c.apiKey) +
		"&start=" + lonLat(from) + "&end=" + lonLat(to)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating route request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("route request: %w: %w", campus.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("route request returned status %d: %w", resp.StatusCode, campus.ErrNetwork)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading route response: %w: %w", campus.ErrNetwork, err)
	}

	return decode(body)
}

func decode(body []byte) ([]geo.Coordinate, error) {
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("decoding route response: %w: %w", campus.ErrJSONShape, err)
	}
	if len(fc.Features) == 0 || fc.Features[0] == nil {
		return nil, fmt.Errorf("route response has no features: %w", campus.ErrJSONShape)
	}

	ls, ok := fc.Features[0].Geometry.(orb.LineString)
	if !ok {
		return nil, fmt.Errorf("route geometry is %T, want LineString: %w", fc.Features[0].Geometry, campus.ErrJSONShape)
	}
	if len(ls) == 0 {
		return nil, fmt.Errorf("route geometry is empty: %w", campus.ErrJSONShape)
	}

	points := make([]geo.Coordinate, len(ls))
	for i, p := range ls {
		points[i] = geo.Coordinate{Lat: p.Lat(), Lon: p.Lon()}
	}
	return points, nil
}
