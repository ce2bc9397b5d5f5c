// Package gmapshttp implements geoprovider.Provider against a Google-style
// maps REST API. Responses follow the {status, ...} envelope; any status
// other than OK maps to an error, ZERO_RESULTS to geoprovider.ErrZeroResults.
package gmapshttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/BearBump/GeoCore/internal/cache/rediscache"
	"github.com/BearBump/GeoCore/internal/integrations/geoprovider"
	"github.com/pkg/errors"
)

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	budget  *rediscache.CallBudget
}

// New builds a client. budget may be nil to disable provider call limiting.
func New(baseURL, apiKey string, budget *rediscache.CallBudget) *Client {
	if baseURL == "" {
		baseURL = "https://maps.googleapis.com"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		budget:  budget,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type directionsResp struct {
	Status string `json:"status"`
	Routes []struct {
		OverviewPolyline struct {
			Points string `json:"points"`
		} `json:"overview_polyline"`
		Legs []struct {
			StartAddress string `json:"start_address"`
			EndAddress   string `json:"end_address"`
			Duration     struct {
				Value int64 `json:"value"`
			} `json:"duration"`
			DurationInTraffic struct {
				Value int64 `json:"value"`
			} `json:"duration_in_traffic"`
			Distance struct {
				Value int64 `json:"value"`
			} `json:"distance"`
			Steps []struct {
				StartLocation geoprovider.Coordinate `json:"start_location"`
				EndLocation   geoprovider.Coordinate `json:"end_location"`
				Duration      struct {
					Value int64 `json:"value"`
				} `json:"duration"`
			} `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func (c *Client) Directions(ctx context.Context, in geoprovider.Input) (*geoprovider.Route, error) {
	q := url.Values{}
	q.Set("origin", fmt.Sprintf("%f,%f", in.Source.Lat, in.Source.Lng))
	q.Set("destination", fmt.Sprintf("%f,%f", in.Destination.Lat, in.Destination.Lng))
	q.Set("departure_time", "now")

	var body directionsResp
	if err := c.getJSON(ctx, "directions", "/maps/api/directions/json", q, &body); err != nil {
		return nil, err
	}
	if err := statusErr(body.Status, body.ErrorMessage); err != nil {
		return nil, err
	}
	if len(body.Routes) == 0 {
		return nil, geoprovider.ErrZeroResults
	}

	route := &geoprovider.Route{OverviewPolyline: body.Routes[0].OverviewPolyline.Points}
	for _, l := range body.Routes[0].Legs {
		leg := geoprovider.Leg{
			StartAddress:             l.StartAddress,
			EndAddress:               l.EndAddress,
			DurationSeconds:          l.Duration.Value,
			DurationInTrafficSeconds: l.DurationInTraffic.Value,
			DistanceMeters:           l.Distance.Value,
		}
		for _, s := range l.Steps {
			leg.Steps = append(leg.Steps, geoprovider.Step{
				StartLocation:   s.StartLocation,
				EndLocation:     s.EndLocation,
				DurationSeconds: s.Duration.Value,
			})
		}
		route.Legs = append(route.Legs, leg)
	}
	return route, nil
}

type distanceResp struct {
	Status string `json:"status"`
	Rows   []struct {
		Elements []struct {
			Status   string `json:"status"`
			Distance struct {
				Value int64 `json:"value"`
			} `json:"distance"`
			Duration struct {
				Value int64  `json:"value"`
				Text  string `json:"text"`
			} `json:"duration"`
		} `json:"elements"`
	} `json:"rows"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func (c *Client) Distance(ctx context.Context, in geoprovider.Input) (*geoprovider.Distance, error) {
	q := url.Values{}
	q.Set("origins", fmt.Sprintf("%f,%f", in.Source.Lat, in.Source.Lng))
	q.Set("destinations", fmt.Sprintf("%f,%f", in.Destination.Lat, in.Destination.Lng))

	var body distanceResp
	if err := c.getJSON(ctx, "distance", "/maps/api/distancematrix/json", q, &body); err != nil {
		return nil, err
	}
	if err := statusErr(body.Status, body.ErrorMessage); err != nil {
		return nil, err
	}
	if len(body.Rows) == 0 || len(body.Rows[0].Elements) == 0 {
		return nil, geoprovider.ErrZeroResults
	}
	el := body.Rows[0].Elements[0]
	if err := statusErr(el.Status, ""); err != nil {
		return nil, err
	}
	return &geoprovider.Distance{
		Meters:          el.Distance.Value,
		DurationSeconds: el.Duration.Value,
		DurationText:    el.Duration.Text,
	}, nil
}

type geocodeResp struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	q := url.Values{}
	q.Set("latlng", fmt.Sprintf("%f,%f", lat, lng))

	var body geocodeResp
	if err := c.getJSON(ctx, "geocode", "/maps/api/geocode/json", q, &body); err != nil {
		return "", err
	}
	if err := statusErr(body.Status, body.ErrorMessage); err != nil {
		return "", err
	}
	if len(body.Results) == 0 {
		return "", geoprovider.ErrZeroResults
	}
	return body.Results[0].FormattedAddress, nil
}

type autocompleteResp struct {
	Status      string `json:"status"`
	Predictions []struct {
		Description string `json:"description"`
		PlaceID     string `json:"place_id"`
		Terms       []struct {
			Value string `json:"value"`
		} `json:"terms"`
	} `json:"predictions"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func (c *Client) Autocomplete(ctx context.Context, input string) ([]geoprovider.Prediction, error) {
	q := url.Values{}
	q.Set("input", input)

	var body autocompleteResp
	if err := c.getJSON(ctx, "autocomplete", "/maps/api/place/autocomplete/json", q, &body); err != nil {
		return nil, err
	}
	if err := statusErr(body.Status, body.ErrorMessage); err != nil {
		return nil, err
	}

	out := make([]geoprovider.Prediction, 0, len(body.Predictions))
	for _, p := range body.Predictions {
		pred := geoprovider.Prediction{Description: p.Description, PlaceID: p.PlaceID}
		for _, t := range p.Terms {
			pred.Terms = append(pred.Terms, t.Value)
		}
		out = append(out, pred)
	}
	return out, nil
}

type placeResp struct {
	Status string `json:"status"`
	Result struct {
		FormattedAddress string `json:"formatted_address"`
		PlaceID          string `json:"place_id"`
		Geometry         struct {
			Location geoprovider.Coordinate `json:"location"`
		} `json:"geometry"`
	} `json:"result"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func (c *Client) Place(ctx context.Context, placeID string) (*geoprovider.Place, error) {
	q := url.Values{}
	q.Set("place_id", placeID)

	var body placeResp
	if err := c.getJSON(ctx, "place", "/maps/api/place/details/json", q, &body); err != nil {
		return nil, err
	}
	if err := statusErr(body.Status, body.ErrorMessage); err != nil {
		return nil, err
	}
	return &geoprovider.Place{
		FormattedAddress: body.Result.FormattedAddress,
		PlaceID:          body.Result.PlaceID,
		Location:         body.Result.Geometry.Location,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, q url.Values, out any) error {
	if c.budget != nil {
		ok, err := c.budget.AllowCall(ctx, op)
		if err == nil && !ok {
			return errors.Errorf("provider call budget exhausted for %s", op)
		}
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return errors.Wrap(err, "parse base url")
	}
	u.Path = path
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("geoprovider http %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode")
	}
	return nil
}

func statusErr(status, message string) error {
	switch status {
	case "OK":
		return nil
	case "ZERO_RESULTS":
		return geoprovider.ErrZeroResults
	default:
		if message != "" {
			return errors.Errorf("geoprovider status=%s: %s", status, message)
		}
		return errors.Errorf("geoprovider status=%s", status)
	}
}
