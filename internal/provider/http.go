/*
Copyright (C) 2026 SignBeam Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package provider is the HTTP client for the on-site companion server:
// playlist content, the vendor ad pool, and play confirmations.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/signbeam/signbeam_player/internal/models"
)

// DefaultBaseURL is where the companion server listens on a stock kiosk.
const DefaultBaseURL = "http://localhost:3215"

// Config tunes the companion client.
type Config struct {
	BaseURL    string
	LicenseKey string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultConfig returns production client defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		Timeout:    15 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// Client talks to the companion server. Requests retry transport failures
// and server errors with a linear backoff; client errors fail fast.
type Client struct {
	cfg    Config
	client *http.Client
	logger zerolog.Logger
}

// New creates a companion client.
func New(cfg Config, logger zerolog.Logger) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger.With().Str("component", "companion_client").Logger(),
	}
}

type playlistResponse struct {
	Status string                      `json:"status"`
	Data   []models.PlaylistContentDTO `json:"data"`
}

// FetchPlaylist retrieves the content list for playlistID and normalizes
// it into a snapshot ordered by sequence.
func (c *Client) FetchPlaylist(ctx context.Context, playlistID string) (*models.PlaylistSnapshot, error) {
	var resp playlistResponse
	path := "/playlist/" + url.PathEscape(playlistID)
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("fetch playlist %s: %w", playlistID, err)
	}

	items := make([]models.PlaylistItem, 0, len(resp.Data))
	for _, dto := range resp.Data {
		items = append(items, dto.ToItem())
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].SequenceIndex < items[j].SequenceIndex
	})

	return &models.PlaylistSnapshot{
		PlaylistID: playlistID,
		Items:      items,
		FetchedAt:  time.Now(),
	}, nil
}

// FetchVendorPool retrieves the current vendor ad creatives.
func (c *Client) FetchVendorPool(ctx context.Context) ([]models.PlaylistItem, error) {
	var resp models.ProgrammaticAdsResponse
	if err := c.getJSON(ctx, "/vistar/get_ad", &resp); err != nil {
		return nil, fmt.Errorf("fetch vendor pool: %w", err)
	}

	pool := make([]models.PlaylistItem, 0, len(resp.Data))
	for _, dto := range resp.Data {
		pool = append(pool, dto.ToItem())
	}
	return pool, nil
}

// RequestRenewal asks the companion server to restock vendor assets from
// the upstream network.
func (c *Client) RequestRenewal(ctx context.Context) error {
	if err := c.getJSON(ctx, "/vistar/get_assets", nil); err != nil {
		return fmt.Errorf("request vendor renewal: %w", err)
	}
	return nil
}

// ReportPlayed confirms one completed showing. Native items hit the play
// counter endpoint; vendor creatives post their proof-of-play token.
func (c *Client) ReportPlayed(ctx context.Context, item models.PlaylistItem) error {
	if item.IsProgrammatic {
		body := map[string]string{"proof_of_play_url": item.ProofOfPlayToken}
		if err := c.postJSON(ctx, "/vistar/proof_of_play", body); err != nil {
			return fmt.Errorf("vendor proof of play %s: %w", item.ID, err)
		}
		return nil
	}
	if err := c.getJSON(ctx, "/content/log/"+url.PathEscape(item.ID), nil); err != nil {
		return fmt.Errorf("report play %s: %w", item.ID, err)
	}
	return nil
}

// getJSON GETs path and decodes the body into dest (nil to discard).
func (c *Client) getJSON(ctx context.Context, path string, dest any) error {
	return c.do(ctx, http.MethodGet, path, "", dest)
}

// postJSON POSTs body as JSON to path.
func (c *Client) postJSON(ctx context.Context, path string, body any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, string(encoded), nil)
}

func (c *Client) do(ctx context.Context, method, path, body string, dest any) error {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt-1) * c.cfg.RetryDelay):
			}
		}

		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.cfg.LicenseKey != "" {
			req.Header.Set("X-License-Key", c.cfg.LicenseKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Debug().Err(err).Str("path", path).Int("attempt", attempt).Msg("companion request failed")
			continue
		}

		if resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("companion server returned %d", resp.StatusCode)
			c.logger.Debug().Str("path", path).Int("status", resp.StatusCode).Int("attempt", attempt).Msg("companion server error")
			continue
		}

		if resp.StatusCode >= 400 {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return fmt.Errorf("companion request %s %s: status %d", method, path, resp.StatusCode)
		}

		if dest == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil
		}

		err = json.NewDecoder(resp.Body).Decode(dest)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode companion response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("companion request %s %s failed after %d attempts: %w", method, path, c.cfg.MaxRetries, lastErr)
}
