package corehttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/BearBump/GeoCore/internal/integrations/registry"
	"github.com/pkg/errors"
)

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:7000"
	}
	return &Client{
		baseURL: baseURL,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type truckResp struct {
	Fleet *registry.Truck `json:"fleet"`
}

type tripResp struct {
	Trip *registry.Trip `json:"trip"`
}

func (c *Client) GetTruck(ctx context.Context, regNumber, token string) (*registry.Truck, bool) {
	var body truckResp
	path := fmt.Sprintf("/truck/regNumber/%s", url.PathEscape(regNumber))
	if err := c.getJSON(ctx, path, token, &body); err != nil {
		slog.Warn("registry truck lookup failed", "regNumber", regNumber, "err", err)
		return nil, false
	}
	if body.Fleet == nil {
		return nil, false
	}
	return body.Fleet, true
}

func (c *Client) GetActiveTrip(ctx context.Context, regNumber, token string) (*registry.Trip, bool) {
	var body tripResp
	path := fmt.Sprintf("/trip/active/regNumber/%s", url.PathEscape(regNumber))
	if err := c.getJSON(ctx, path, token, &body); err != nil {
		slog.Warn("registry active trip lookup failed", "regNumber", regNumber, "err", err)
		return nil, false
	}
	if body.Trip == nil {
		return nil, false
	}
	return body.Trip, true
}

func (c *Client) UpdateTripLocation(ctx context.Context, tripID, token string, upd registry.LocationUpdate) error {
	path := fmt.Sprintf("/trip/%s/updateLocation", url.PathEscape(tripID))
	return c.putJSON(ctx, path, token, upd)
}

func (c *Client) UpdateTruckLocation(ctx context.Context, regNumber, token string, upd registry.LocationUpdate) error {
	path := fmt.Sprintf("/truck/regNumber/%s", url.PathEscape(regNumber))
	return c.putJSON(ctx, path, token, upd)
}

func (c *Client) getJSON(ctx context.Context, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	c.setHeaders(req, token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("registry http %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode")
	}
	return nil
}

func (c *Client) putJSON(ctx context.Context, path, token string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	c.setHeaders(req, token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("registry http %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
