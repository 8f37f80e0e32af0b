/*
Copyright (C) 2026 SignBeam Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playlist holds the deterministic rotation primitives: the
// sequence cursor over native items and the vendor ad interleaver.
package playlist

import (
	"errors"
	"time"

	"github.com/signbeam/signbeam_player/internal/models"
	"github.com/signbeam/signbeam_player/internal/schedule"
)

// ErrNoneEligible indicates a full cycle over the native items found
// nothing playable at the probed instant.
var ErrNoneEligible = errors.New("no eligible item in playlist")

// Next scans forward from startIndex (wrapping modulo playlist length) and
// returns the first eligible native item together with its index. A full
// barren cycle — exactly len(snapshot.Items) probes — yields
// ErrNoneEligible; an empty playlist yields it without probing.
func Next(snapshot *models.PlaylistSnapshot, startIndex int, now time.Time) (models.PlaylistItem, int, error) {
	n := len(snapshot.Items)
	if n == 0 {
		return models.PlaylistItem{}, 0, ErrNoneEligible
	}

	idx := startIndex % n
	if idx < 0 {
		idx += n
	}

	for probe := 0; probe < n; probe++ {
		item := snapshot.Items[idx]
		if schedule.IsEligible(item, now) {
			return item, idx, nil
		}
		idx = (idx + 1) % n
	}

	return models.PlaylistItem{}, 0, ErrNoneEligible
}
