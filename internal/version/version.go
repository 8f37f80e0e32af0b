/*
Copyright (C) 2026 SignBeam Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version exposes the build version and a background check against
// the latest published release. A kiosk cannot update itself; the result is
// surfaced on the local API so fleet tooling can see which screens run
// stale builds.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Version is the build version of the player, set at build time via
// ldflags:
//
//	-X github.com/signbeam/signbeam_player/internal/version.Version=X.Y.Z
var Version = "2.3.0"

// releasesURL is the endpoint answering with the latest published release.
const releasesURL = "https://api.github.com/repos/signbeam/signbeam_player/releases/latest"

// Info is the player's view of its own currency, shaped for the local API.
type Info struct {
	Current         string    `json:"current"`
	Latest          string    `json:"latest,omitempty"`
	UpdateAvailable bool      `json:"update_available"`
	CheckedAt       time.Time `json:"checked_at,omitempty"`
}

// Checker polls for the latest release in the background.
type Checker struct {
	logger zerolog.Logger
	period time.Duration
	client *http.Client
	cancel context.CancelFunc

	mu   sync.RWMutex
	info Info
}

// NewChecker creates a checker. It does nothing until Start is called.
func NewChecker(logger zerolog.Logger) *Checker {
	return &Checker{
		logger: logger.With().Str("component", "update_checker").Logger(),
		period: 6 * time.Hour,
		client: &http.Client{Timeout: 10 * time.Second},
		info:   Info{Current: Version},
	}
}

// Start checks once immediately, then on the checker's period, until ctx is
// cancelled or Stop is called. Failures are logged and retried on the next
// cycle; a kiosk behind a captive network simply never learns about
// updates.
func (c *Checker) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	go func() {
		c.checkOnce(ctx)

		ticker := time.NewTicker(c.period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.checkOnce(ctx)
			}
		}
	}()
}

// Stop cancels background checking.
func (c *Checker) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Info returns the most recent check result.
func (c *Checker) Info() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

func (c *Checker) checkOnce(ctx context.Context) {
	latest, err := c.fetchLatest(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Msg("release check failed")
		return
	}

	info := Info{
		Current:         Version,
		Latest:          latest,
		UpdateAvailable: compareVersions(Version, latest) < 0,
		CheckedAt:       time.Now(),
	}

	c.mu.Lock()
	c.info = info
	c.mu.Unlock()

	if info.UpdateAvailable {
		c.logger.Info().
			Str("current", Version).
			Str("latest", latest).
			Msg("newer player build published")
	}
}

func (c *Checker) fetchLatest(ctx context.Context) (string, error) {
	return c.fetchLatestFrom(ctx, releasesURL)
}

func (c *Checker) fetchLatestFrom(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "SignBeam-Player/"+Version)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("release endpoint returned %d", resp.StatusCode)
	}

	var release struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", err
	}
	return strings.TrimPrefix(release.TagName, "v"), nil
}

// compareVersions orders two dotted versions: -1 when a < b, 0 when equal,
// 1 when a > b.
func compareVersions(a, b string) int {
	av, bv := parseVersion(a), parseVersion(b)
	for i := 0; i < 3; i++ {
		if av[i] != bv[i] {
			if av[i] < bv[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func parseVersion(v string) [3]int {
	parts := strings.SplitN(strings.TrimPrefix(v, "v"), ".", 3)
	var out [3]int
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			break
		}
		out[i] = n
	}
	return out
}
