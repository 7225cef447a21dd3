package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"codeberg.org/mutker/ventctl/internal/errors"
	"codeberg.org/mutker/ventctl/internal/logger"
)

const defaultTimeout = 10 * time.Second

// Client talks to the remote vent API. The API is unreliable and
// rate-limited; callers are expected to route requests through the
// interlock rather than calling in a tight loop.
type Client struct {
	base   string
	http   *http.Client
	logger logger.Logger
}

func NewClient(baseURL string, timeout time.Duration, log logger.Logger) (*Client, error) {
	errFactory := errors.New()

	if baseURL == "" {
		return nil, errFactory.WithMessage(errors.ErrInvalidConfig, "device API endpoint is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		http:   &http.Client{Timeout: timeout},
		logger: log,
	}, nil
}

func (c *Client) Snapshots(ctx context.Context) ([]Snapshot, error) {
	errFactory := errors.New()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/vents", nil)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInternal, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errFactory.Wrap(ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var snapshots []Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshots); err != nil {
		return nil, errFactory.Wrap(ErrBadResponse, err)
	}

	return snapshots, nil
}

func (c *Client) Thermostat(ctx context.Context) (Thermostat, error) {
	errFactory := errors.New()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/thermostat", nil)
	if err != nil {
		return Thermostat{}, errFactory.Wrap(errors.ErrInternal, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Thermostat{}, errFactory.Wrap(ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Thermostat{}, c.statusError(resp)
	}

	var thermostat Thermostat
	if err := json.NewDecoder(resp.Body).Decode(&thermostat); err != nil {
		return Thermostat{}, errFactory.Wrap(ErrBadResponse, err)
	}

	return thermostat, nil
}

func (c *Client) SetOpening(ctx context.Context, roomID string, percent int) error {
	errFactory := errors.New()

	body, err := json.Marshal(map[string]int{"percent": percent})
	if err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	url := fmt.Sprintf("%s/api/vents/%s/opening", c.base, roomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errFactory.Wrap(ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return c.statusError(resp)
	}

	c.logger.Debug().
		Str("room", roomID).
		Int("percent", percent).
		Msg("Vent opening command accepted")

	return nil
}

func (c *Client) statusError(resp *http.Response) error {
	errFactory := errors.New()

	// Keep a short excerpt of the body for diagnostics.
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 256))

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return errFactory.WithData(ErrMissing, struct {
			Status int
			Body   string
		}{
			Status: resp.StatusCode,
			Body:   string(excerpt),
		})
	}

	return errFactory.WithData(ErrUnreachable, struct {
		Status int
		Body   string
	}{
		Status: resp.StatusCode,
		Body:   string(excerpt),
	})
}
