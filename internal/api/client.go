package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fleetops/hardpoint/internal/engine"
	"github.com/fleetops/hardpoint/pkg/core"
)

// Client talks to a running hardpoint server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck checks if the server is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// CreateMission creates a mission on the server.
func (c *Client) CreateMission(ctx context.Context, in engine.MissionInput) (Mission, error) {
	var out Mission
	err := c.do(ctx, http.MethodPost, "/missions", in, &out)
	return out, err
}

// Loadout resolves the thirteen positions of a mission.
func (c *Client) Loadout(ctx context.Context, missionID uint) ([]Position, error) {
	var out []Position
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/missions/%d/loadout", missionID), nil, &out)
	return out, err
}

// Assign places equipment at a position.
func (c *Client) Assign(ctx context.Context, missionID uint, pos core.PositionID, body AssignBody) (Transition, error) {
	var out Transition
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("/missions/%d/positions/%s", missionID, pos), body, &out)
	return out, err
}

// Fire declares the missile at a position fired.
func (c *Client) Fire(ctx context.Context, missionID uint, pos core.PositionID) (Transition, error) {
	var out Transition
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/missions/%d/positions/%s/fire", missionID, pos), nil, &out)
	return out, err
}

// Correct applies an administrative correction to a position.
func (c *Client) Correct(ctx context.Context, missionID uint, pos core.PositionID, body CorrectionBody) (Transition, error) {
	var out Transition
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/missions/%d/positions/%s/correction", missionID, pos), body, &out)
	return out, err
}

// FleetStatus fetches the fatigue snapshot of every catalogued launcher.
func (c *Client) FleetStatus(ctx context.Context) ([]LauncherStatus, error) {
	var out []LauncherStatus
	err := c.do(ctx, http.MethodGet, "/launchers?view=status", nil, &out)
	return out, err
}

// LauncherStatus fetches the fatigue snapshot of a launcher.
func (c *Client) LauncherStatus(ctx context.Context, partNumber string) (LauncherStatus, error) {
	var out LauncherStatus
	err := c.do(ctx, http.MethodGet, "/launchers/"+url.PathEscape(partNumber)+"/status", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.StoreFailure("api."+method, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(method+" "+path, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError rebuilds a typed error from an error response so callers can
// branch on core.IsKind the same way they would in-process.
func decodeError(op string, resp *http.Response) error {
	var body ErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
	}
	e := core.NewError(kindFor(resp.StatusCode), op, errors.New(body.Error))
	return e.At(body.MissionID, body.Position)
}

func kindFor(status int) core.Kind {
	switch status {
	case http.StatusBadRequest:
		return core.KindValidation
	case http.StatusNotFound:
		return core.KindNotFound
	case http.StatusConflict:
		return core.KindConflict
	case http.StatusUnprocessableEntity:
		return core.KindDataIntegrity
	case http.StatusServiceUnavailable:
		return core.KindStore
	default:
		return core.KindUnknown
	}
}
