/*
Copyright (C) 2026 SignBeam Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/signbeam/signbeam_player/internal/models"
)

// EndReason classifies how a shown item finished.
type EndReason string

const (
	EndTimer   EndReason = "timer"
	EndNatural EndReason = "natural"
	EndError   EndReason = "render_error"
	EndStuck   EndReason = "stuck"
)

// EndEvent is delivered to the director when the armed item finishes.
type EndEvent struct {
	Item    models.PlaylistItem
	Reason  EndReason
	Elapsed time.Duration
}

// DriverConfig tunes the per-item timers. Tests shrink these to keep runs
// fast; production uses the defaults.
type DriverConfig struct {
	// DefaultDuration is used for image/feed items without a configured
	// duration.
	DefaultDuration time.Duration
	// StuckSafetyDefault bounds a video without a configured duration.
	StuckSafetyDefault time.Duration
	// SafetyFactor scales a video's configured duration into its safety
	// timeout.
	SafetyFactor float64
	// LiveStreamDuration is the deliberately tiny re-validation period for
	// live items; their real lifetime is owned by the preemptor poll.
	LiveStreamDuration time.Duration
}

// DefaultDriverConfig returns production timer defaults.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		DefaultDuration:    20 * time.Second,
		StuckSafetyDefault: 30 * time.Second,
		SafetyFactor:       1.5,
		LiveStreamDuration: 100 * time.Millisecond,
	}
}

// Driver runs the Armed -> Playing -> {Ended | Errored} state machine for
// the currently shown item. Timer handles are explicit and released on
// every re-arm; a generation token makes stale timer callbacks no-ops, so
// ending an item twice has the same observable effect as ending it once.
type Driver struct {
	cfg    DriverConfig
	onEnd  func(EndEvent)
	logger zerolog.Logger

	mu      sync.Mutex
	gen     uint64
	armed   bool
	done    bool
	item    models.PlaylistItem
	armedAt time.Time
	timer   *time.Timer
	safety  *time.Timer
}

// NewDriver creates a display driver delivering end events to onEnd.
// onEnd is invoked from timer goroutines; the director serializes it onto
// its command loop.
func NewDriver(cfg DriverConfig, onEnd func(EndEvent), logger zerolog.Logger) *Driver {
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = 20 * time.Second
	}
	if cfg.StuckSafetyDefault <= 0 {
		cfg.StuckSafetyDefault = 30 * time.Second
	}
	if cfg.SafetyFactor <= 0 {
		cfg.SafetyFactor = 1.5
	}
	if cfg.LiveStreamDuration <= 0 {
		cfg.LiveStreamDuration = 100 * time.Millisecond
	}
	return &Driver{
		cfg:    cfg,
		onEnd:  onEnd,
		logger: logger.With().Str("component", "display_driver").Logger(),
	}
}

// Arm starts timing the given item, cancelling any timers still pending
// from the previous one.
func (d *Driver) Arm(item models.PlaylistItem) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.releaseTimersLocked()
	d.gen++
	gen := d.gen
	d.item = item
	d.armed = true
	d.done = false
	d.armedAt = time.Now()

	switch item.MediaKind {
	case models.MediaVideo:
		// The rendering surface reports the natural end; the safety timer
		// only catches a frozen renderer.
		d.safety = time.AfterFunc(d.safetyTimeout(item), func() { d.fire(gen, EndStuck) })
	case models.MediaLiveStream:
		d.timer = time.AfterFunc(d.cfg.LiveStreamDuration, func() { d.fire(gen, EndTimer) })
	default:
		d.timer = time.AfterFunc(d.displayDuration(item), func() { d.fire(gen, EndTimer) })
	}

	d.logger.Debug().
		Str("item", item.ID).
		Str("kind", string(item.MediaKind)).
		Float64("duration_s", item.DurationSeconds).
		Msg("armed")
}

// NaturalEnd records a playback-complete signal from the rendering surface.
func (d *Driver) NaturalEnd() {
	d.mu.Lock()
	gen := d.gen
	d.mu.Unlock()
	d.fire(gen, EndNatural)
}

// RenderError records a render failure; the item ends immediately.
func (d *Driver) RenderError() {
	d.mu.Lock()
	gen := d.gen
	d.mu.Unlock()
	d.fire(gen, EndError)
}

// Cancel releases all pending timers without emitting an end event. Used
// on preemption and shutdown so the interrupted item produces no side
// effects.
func (d *Driver) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseTimersLocked()
	d.armed = false
	d.done = true
}

// Current returns the armed item and whether one is active.
func (d *Driver) Current() (models.PlaylistItem, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.item, d.armed && !d.done
}

func (d *Driver) fire(gen uint64, reason EndReason) {
	d.mu.Lock()
	if !d.armed || d.done || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.done = true
	item := d.item
	elapsed := time.Since(d.armedAt)
	d.releaseTimersLocked()
	d.mu.Unlock()

	d.onEnd(EndEvent{Item: item, Reason: reason, Elapsed: elapsed})
}

func (d *Driver) displayDuration(item models.PlaylistItem) time.Duration {
	if item.DurationSeconds > 0 {
		return time.Duration(item.DurationSeconds * float64(time.Second))
	}
	return d.cfg.DefaultDuration
}

func (d *Driver) safetyTimeout(item models.PlaylistItem) time.Duration {
	if item.DurationSeconds > 0 {
		return time.Duration(item.DurationSeconds * d.cfg.SafetyFactor * float64(time.Second))
	}
	return d.cfg.StuckSafetyDefault
}

func (d *Driver) releaseTimersLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.safety != nil {
		d.safety.Stop()
		d.safety = nil
	}
}
