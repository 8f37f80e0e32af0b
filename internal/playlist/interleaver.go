/*
Copyright (C) 2026 SignBeam Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import "github.com/signbeam/signbeam_player/internal/models"

// DefaultVendorPosition is the native-advance cadence at which a vendor
// creative is substituted when no explicit position is configured.
const DefaultVendorPosition = 4

// ShouldInsertVendor reports whether the next advance should substitute a
// vendor creative instead of the native successor. counter is the 1-based
// count of native advances since the last vendor insertion; the
// substitution fires after every position-th native advance.
func ShouldInsertVendor(counter, position int) bool {
	if position <= 0 {
		position = DefaultVendorPosition
	}
	advances := counter - 1
	return advances != 0 && advances%position == 0
}

// NextVendor returns the vendor creative at cursor (round-robin over the
// pool) and the advanced cursor. An empty pool reports ok=false; the caller
// falls back to the native rotation for that turn and requests a pool
// refresh.
func NextVendor(pool []models.PlaylistItem, cursor int) (models.PlaylistItem, int, bool) {
	if len(pool) == 0 {
		return models.PlaylistItem{}, cursor, false
	}
	idx := cursor % len(pool)
	if idx < 0 {
		idx += len(pool)
	}
	return pool[idx], idx + 1, true
}
