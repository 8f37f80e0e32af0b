/*
Copyright (C) 2026 SignBeam Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playout contains the playback director and the display driver.
// The director owns all rotation state; every external stimulus (timer
// expiry, render signal, API call, socket event) is posted onto its command
// loop and handled one at a time.
package playout

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/signbeam/signbeam_player/internal/events"
	"github.com/signbeam/signbeam_player/internal/models"
	"github.com/signbeam/signbeam_player/internal/playlist"
	"github.com/signbeam/signbeam_player/internal/position"
	"github.com/signbeam/signbeam_player/internal/schedule"
	"github.com/signbeam/signbeam_player/internal/telemetry"
)

// PlaylistProvider fetches the playlist content for a screen.
type PlaylistProvider interface {
	FetchPlaylist(ctx context.Context, playlistID string) (*models.PlaylistSnapshot, error)
}

// VendorProvider fetches vendor ad creatives and requests pool renewals.
type VendorProvider interface {
	FetchVendorPool(ctx context.Context) ([]models.PlaylistItem, error)
	RequestRenewal(ctx context.Context) error
}

// Reporter delivers play confirmations back to the companion server.
type Reporter interface {
	ReportPlayed(ctx context.Context, item models.PlaylistItem) error
}

// Phase describes what the director is currently doing.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhasePlaying    Phase = "playing"
	PhaseLivestream Phase = "livestream"
	PhaseExhausted  Phase = "exhausted"
	PhasePaused     Phase = "paused"
	PhaseDegraded   Phase = "degraded"
)

// Config tunes the director. Zero values fall back to production defaults.
type Config struct {
	PlaylistID string

	// VendorAdPosition is the native-advance cadence for vendor insertion.
	VendorAdPosition int
	// LivestreamPollInterval is how often eligibility of live streams is
	// re-checked while ordinary content is showing.
	LivestreamPollInterval time.Duration
	// VendorReportDelay defers the vendor proof-of-play report so the
	// creative has verifiably been on screen.
	VendorReportDelay time.Duration
	// ExhaustedRetryInterval is the probe cadence while nothing is
	// eligible.
	ExhaustedRetryInterval time.Duration
	// HardRestartThreshold scales how many consecutive barren cycles the
	// exhausted phase tolerates before requesting a hard restart. Zero
	// disables that escalation. Stuck assets always restart.
	HardRestartThreshold int

	Driver DriverConfig
}

// DefaultConfig returns production director defaults.
func DefaultConfig() Config {
	return Config{
		VendorAdPosition:       playlist.DefaultVendorPosition,
		LivestreamPollInterval: 5 * time.Second,
		VendorReportDelay:      5 * time.Second,
		ExhaustedRetryInterval: 5 * time.Second,
		HardRestartThreshold:   3,
		Driver:                 DefaultDriverConfig(),
	}
}

// Status is a point-in-time snapshot of the director for the local API.
type Status struct {
	Phase           Phase                `json:"phase"`
	Operating       bool                 `json:"operating"`
	CurrentItem     *models.PlaylistItem `json:"current_item,omitempty"`
	CurrentIndex    int                  `json:"current_index"`
	VendorCounter   int                  `json:"vendor_counter"`
	ItemCount       int                  `json:"item_count"`
	VendorPoolCount int                  `json:"vendor_pool_count"`
	FetchedAt       time.Time            `json:"playlist_fetched_at"`
}

// Director drives the rotation: sequence advancement, scheduling rules,
// vendor interleaving, livestream preemption, and position persistence.
type Director struct {
	cfg       Config
	playlists PlaylistProvider
	vendors   VendorProvider
	reporter  Reporter
	positions position.Store
	journal   *gorm.DB
	bus       *events.Bus
	logger    zerolog.Logger

	driver *Driver
	cmds   chan func(context.Context)
	done   chan struct{}
	now    func() time.Time

	// Everything below is touched only from the command loop (or from
	// tests driving the loop synchronously).
	state            models.PlaybackState
	snapshot         *models.PlaylistSnapshot
	phase            Phase
	operating        bool
	exhaustedStreak  int
	vendorRefreshing bool
	retryTimer       *time.Timer
}

// New creates a director. journal may be nil to disable the play log.
func New(cfg Config, playlists PlaylistProvider, vendors VendorProvider, reporter Reporter, positions position.Store, journal *gorm.DB, bus *events.Bus, logger zerolog.Logger) (*Director, error) {
	def := DefaultConfig()
	if cfg.VendorAdPosition <= 0 {
		cfg.VendorAdPosition = def.VendorAdPosition
	}
	if cfg.LivestreamPollInterval <= 0 {
		cfg.LivestreamPollInterval = def.LivestreamPollInterval
	}
	if cfg.VendorReportDelay <= 0 {
		cfg.VendorReportDelay = def.VendorReportDelay
	}
	if cfg.ExhaustedRetryInterval <= 0 {
		cfg.ExhaustedRetryInterval = def.ExhaustedRetryInterval
	}

	if journal != nil {
		if err := journal.AutoMigrate(&models.PlayLog{}); err != nil {
			return nil, err
		}
	}

	d := &Director{
		cfg:       cfg,
		playlists: playlists,
		vendors:   vendors,
		reporter:  reporter,
		positions: positions,
		journal:   journal,
		bus:       bus,
		logger:    logger.With().Str("component", "director").Logger(),
		cmds:      make(chan func(context.Context), 64),
		done:      make(chan struct{}),
		now:       time.Now,
		state:     models.NewPlaybackState(),
		phase:     PhaseIdle,
		operating: true,
	}
	d.driver = NewDriver(cfg.Driver, d.onDriverEnd, logger)
	return d, nil
}

// Run executes the command loop until ctx is cancelled. It loads the
// playlist, restores the persisted position, and starts the rotation; a
// failed initial load degrades the player and retries instead of exiting.
func (d *Director) Run(ctx context.Context) error {
	defer close(d.done)
	defer d.driver.Cancel()
	defer d.stopRetryTimer()

	if err := d.load(ctx); err != nil {
		// The player stays up without content; the host shows its fallback
		// page until a reload succeeds.
		d.logger.Error().Err(err).Msg("initial playlist load failed")
		if d.bus != nil {
			d.bus.Publish(events.EventInitFailed, events.Payload{"error": err.Error()})
		}
		d.phase = PhaseDegraded
		d.scheduleReload()
	} else {
		d.restorePosition(ctx)
		d.requestVendorRefresh(ctx)
		d.advance(ctx, d.now())
	}

	poll := time.NewTicker(d.cfg.LivestreamPollInterval)
	defer poll.Stop()

	var statusCh events.Subscriber
	if d.bus != nil {
		statusCh = d.bus.Subscribe(events.EventScheduleStatus)
		defer d.bus.Unsubscribe(events.EventScheduleStatus, statusCh)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-d.cmds:
			cmd(ctx)
		case <-poll.C:
			d.pollLivestream(ctx, d.now())
		case payload, ok := <-statusCh:
			if !ok {
				statusCh = nil
				continue
			}
			operating, _ := payload["operating"].(bool)
			d.setOperating(ctx, operating)
		}
	}
}

// post queues fn onto the command loop; it is dropped once Run has
// returned.
func (d *Director) post(fn func(context.Context)) {
	select {
	case d.cmds <- fn:
	case <-d.done:
	}
}

// Refresh re-fetches the playlist and restarts the rotation over the new
// snapshot from the persisted position.
func (d *Director) Refresh() {
	d.post(func(ctx context.Context) {
		if err := d.load(ctx); err != nil {
			d.logger.Error().Err(err).Msg("playlist refresh failed")
			return
		}
		d.state = models.NewPlaybackState()
		d.restorePosition(ctx)
		d.driver.Cancel()
		d.advance(ctx, d.now())
	})
}

// Skip abandons the current item and advances immediately. No play is
// reported for the skipped item.
func (d *Director) Skip() {
	d.post(func(ctx context.Context) {
		d.driver.Cancel()
		d.state.LivestreamOverrideActive = false
		d.advance(ctx, d.now())
	})
}

// ResetPosition clears the persisted cursor and restarts from the top.
func (d *Director) ResetPosition() {
	d.post(func(ctx context.Context) {
		if d.positions != nil {
			if err := d.positions.Delete(ctx, d.positionKey()); err != nil {
				d.logger.Warn().Err(err).Msg("failed to clear persisted position")
			}
		}
		d.state = models.NewPlaybackState()
		d.driver.Cancel()
		if d.bus != nil {
			d.bus.Publish(events.EventPositionReset, events.Payload{"playlist_id": d.cfg.PlaylistID})
		}
		d.advance(ctx, d.now())
	})
}

// NaturalEnd forwards a playback-complete signal from the rendering
// surface.
func (d *Director) NaturalEnd() { d.driver.NaturalEnd() }

// RenderError forwards a render-failure signal from the rendering surface.
func (d *Director) RenderError() { d.driver.RenderError() }

// Status returns a snapshot of the director state, or ok=false when the
// command loop is not running.
func (d *Director) Status() (Status, bool) {
	reply := make(chan Status, 1)
	select {
	case d.cmds <- func(context.Context) { reply <- d.status() }:
	case <-d.done:
		return Status{}, false
	}
	select {
	case st := <-reply:
		return st, true
	case <-d.done:
		return Status{}, false
	}
}

func (d *Director) status() Status {
	st := Status{
		Phase:         d.phase,
		Operating:     d.operating,
		CurrentItem:   d.state.CurrentlyShown,
		CurrentIndex:  d.state.CurrentIndex,
		VendorCounter: d.state.VendorCounter,
	}
	if d.snapshot != nil {
		st.ItemCount = len(d.snapshot.Items)
		st.VendorPoolCount = len(d.snapshot.VendorPool)
		st.FetchedAt = d.snapshot.FetchedAt
	}
	return st
}

// load fetches a fresh playlist snapshot and swaps it in wholesale.
func (d *Director) load(ctx context.Context) error {
	snapshot, err := d.playlists.FetchPlaylist(ctx, d.cfg.PlaylistID)
	if err != nil {
		return err
	}
	if d.snapshot != nil {
		// Keep the vendor pool across playlist refreshes; it has its own
		// refresh path.
		snapshot.VendorPool = d.snapshot.VendorPool
	}
	d.snapshot = snapshot
	d.logger.Info().
		Str("playlist_id", snapshot.PlaylistID).
		Int("items", len(snapshot.Items)).
		Msg("playlist loaded")
	return nil
}

func (d *Director) positionKey() string {
	return "position:" + d.cfg.PlaylistID
}

// restorePosition resumes the rotation from the persisted cursor when it
// still points inside the current playlist.
func (d *Director) restorePosition(ctx context.Context) {
	if d.positions == nil || d.snapshot == nil {
		return
	}
	raw, ok, err := d.positions.Get(ctx, d.positionKey())
	if err != nil {
		d.logger.Warn().Err(err).Msg("position restore failed")
		return
	}
	if !ok {
		return
	}
	idx, err := strconv.Atoi(raw)
	if err != nil || idx < 0 || idx >= len(d.snapshot.Items) {
		d.logger.Warn().Str("value", raw).Msg("discarding persisted position outside playlist")
		return
	}
	d.state.CurrentIndex = idx
	telemetry.PositionRestoresTotal.Inc()
	d.logger.Info().Int("index", idx).Msg("resumed persisted position")
}

func (d *Director) persistPosition(ctx context.Context) {
	if d.positions == nil {
		return
	}
	if err := d.positions.Set(ctx, d.positionKey(), strconv.Itoa(d.state.CurrentIndex)); err != nil {
		d.logger.Warn().Err(err).Msg("position persist failed")
	}
}

// advance decides and shows the next item. Priority order: livestream
// override, vendor insertion at the configured cadence, then the native
// rotation.
func (d *Director) advance(ctx context.Context, now time.Time) {
	if !d.operating {
		d.phase = PhasePaused
		return
	}
	if d.snapshot == nil {
		d.phase = PhaseDegraded
		d.scheduleReload()
		return
	}
	if len(d.snapshot.Items) == 0 {
		d.enterExhausted(ctx)
		return
	}

	if live, ok := d.eligibleLivestream(now); ok {
		d.showLivestream(ctx, live)
		return
	}
	d.state.LivestreamOverrideActive = false

	if playlist.ShouldInsertVendor(d.state.VendorCounter, d.cfg.VendorAdPosition) {
		if vendor, cursor, ok := playlist.NextVendor(d.snapshot.VendorPool, d.state.VendorPoolIndex); ok {
			d.state.VendorPoolIndex = cursor
			d.state.VendorCounter = 1
			d.phase = PhasePlaying
			telemetry.VendorInsertionsTotal.Inc()
			d.show(ctx, vendor)
			return
		}
		// Empty pool: skip this slot, use the native successor, and try to
		// restock for the next one.
		d.state.VendorCounter = 1
		d.requestVendorRefresh(ctx)
	}

	item, idx, err := playlist.Next(d.snapshot, d.state.CurrentIndex, now)
	if err != nil {
		d.enterExhausted(ctx)
		return
	}

	d.exhaustedStreak = 0
	d.state.CurrentIndex = (idx + 1) % len(d.snapshot.Items)
	d.state.VendorCounter++
	d.phase = PhasePlaying
	telemetry.AdvancesTotal.Inc()
	d.persistPosition(ctx)
	d.show(ctx, item)
}

func (d *Director) show(ctx context.Context, item models.PlaylistItem) {
	shown := item
	d.state.CurrentlyShown = &shown
	d.driver.Arm(item)
	d.logger.Info().
		Str("item", item.ID).
		Str("title", item.Title).
		Str("kind", string(item.MediaKind)).
		Bool("programmatic", item.IsProgrammatic).
		Msg("showing item")
	if d.bus != nil {
		d.bus.Publish(events.EventItemChanged, events.Payload{
			"item_id":      item.ID,
			"title":        item.Title,
			"kind":         string(item.MediaKind),
			"programmatic": item.IsProgrammatic,
			"fullscreen":   item.IsFullscreen,
			"url":          item.URL,
		})
	}
	_ = ctx
}

// eligibleLivestream returns the first live stream currently inside its
// schedule window.
func (d *Director) eligibleLivestream(now time.Time) (models.PlaylistItem, bool) {
	for _, live := range d.snapshot.LiveStreams() {
		if schedule.IsEligible(live, now) {
			return live, true
		}
	}
	return models.PlaylistItem{}, false
}

func (d *Director) showLivestream(ctx context.Context, live models.PlaylistItem) {
	if !d.state.LivestreamOverrideActive {
		telemetry.PreemptionsTotal.Inc()
		d.logger.Info().Str("item", live.ID).Msg("livestream preempting rotation")
	}
	d.state.LivestreamOverrideActive = true
	d.phase = PhaseLivestream
	d.show(ctx, live)
}

// pollLivestream preempts ordinary content as soon as a live stream enters
// its window. While a live stream is showing, only its own window is
// re-validated (by the driver's short cycle); a second stream that becomes
// eligible waits until the current one's window closes.
func (d *Director) pollLivestream(ctx context.Context, now time.Time) {
	if !d.operating || d.snapshot == nil || d.state.LivestreamOverrideActive {
		return
	}
	live, ok := d.eligibleLivestream(now)
	if !ok {
		return
	}
	d.driver.Cancel()
	d.showLivestream(ctx, live)
}

// onDriverEnd runs on a timer goroutine; it re-enters the command loop.
func (d *Director) onDriverEnd(ev EndEvent) {
	d.post(func(ctx context.Context) { d.handleEnd(ctx, ev, d.now()) })
}

// handleEnd reacts to the armed item finishing. Events for an item that is
// no longer the one on screen are dropped.
func (d *Director) handleEnd(ctx context.Context, ev EndEvent, now time.Time) {
	if d.state.CurrentlyShown == nil || d.state.CurrentlyShown.ID != ev.Item.ID {
		d.logger.Debug().Str("item", ev.Item.ID).Str("reason", string(ev.Reason)).Msg("dropping stale end event")
		return
	}

	// Live streams re-validate on a tight cycle: re-arm while the window
	// holds, relinquish to the rotation the moment it closes.
	if ev.Item.MediaKind == models.MediaLiveStream && ev.Reason == EndTimer {
		if schedule.IsEligible(ev.Item, now) {
			d.driver.Arm(ev.Item)
			return
		}
		d.logger.Info().Str("item", ev.Item.ID).Msg("livestream window closed, resuming rotation")
		d.state.LivestreamOverrideActive = false
		d.state.CurrentlyShown = nil
		d.advance(ctx, now)
		return
	}

	switch ev.Reason {
	case EndStuck:
		// A safety-timer fire means the renderer froze mid-item. The display
		// context is gone; feeding it more content would just freeze again,
		// so the play surface gets reloaded instead of advanced.
		telemetry.StuckAssetsTotal.Inc()
		d.logger.Error().Str("item", ev.Item.ID).Msg("asset stuck past safety timeout")
		d.journalPlay(ctx, ev)
		d.publishEnd(events.EventContentErrored, ev)
		d.state.CurrentlyShown = nil
		d.hardRestart("stuck asset")
		return
	case EndError:
		telemetry.RenderErrorsTotal.Inc()
		d.logger.Warn().Str("item", ev.Item.ID).Msg("render error, skipping item")
		d.journalPlay(ctx, ev)
		d.publishEnd(events.EventContentErrored, ev)
	default:
		telemetry.ItemDisplaySeconds.WithLabelValues(string(ev.Item.MediaKind)).Observe(ev.Elapsed.Seconds())
		d.journalPlay(ctx, ev)
		d.publishEnd(events.EventContentEnded, ev)
		d.reportPlay(ev.Item)
		if ev.Item.IsProgrammatic {
			d.requestVendorRefresh(ctx)
		}
	}

	d.state.CurrentlyShown = nil
	d.advance(ctx, now)
}

func (d *Director) publishEnd(eventType events.EventType, ev EndEvent) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventType, events.Payload{
		"item_id":       ev.Item.ID,
		"reason":        string(ev.Reason),
		"shown_seconds": ev.Elapsed.Seconds(),
	})
}

// reportPlay confirms the play to the companion server off the command
// loop. Vendor creatives are reported after a short delay.
func (d *Director) reportPlay(item models.PlaylistItem) {
	if d.reporter == nil {
		return
	}
	delay := time.Duration(0)
	if item.IsProgrammatic {
		delay = d.cfg.VendorReportDelay
	}
	go func() {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-d.done:
				return
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := d.reporter.ReportPlayed(ctx, item); err != nil {
			d.logger.Warn().Err(err).Str("item", item.ID).Msg("play report failed")
		}
	}()
}

func (d *Director) journalPlay(ctx context.Context, ev EndEvent) {
	if d.journal == nil {
		return
	}
	entry := models.PlayLog{
		ID:           uuid.NewString(),
		ItemID:       ev.Item.ID,
		Title:        ev.Item.Title,
		MediaKind:    ev.Item.MediaKind,
		Programmatic: ev.Item.IsProgrammatic,
		EndReason:    string(ev.Reason),
		ShownSeconds: ev.Elapsed.Seconds(),
	}
	if err := d.journal.WithContext(ctx).Create(&entry).Error; err != nil {
		d.logger.Warn().Err(err).Msg("play journal write failed")
	}
}

// enterExhausted parks the rotation when nothing is eligible and retries
// on a fixed cadence.
func (d *Director) enterExhausted(ctx context.Context) {
	d.exhaustedStreak++
	d.phase = PhaseExhausted
	d.state.CurrentlyShown = nil
	d.state.CurrentIndex = 0
	telemetry.ExhaustionsTotal.Inc()
	d.logger.Warn().Int("streak", d.exhaustedStreak).Msg("no eligible content, rotation parked")

	d.requestVendorRefresh(ctx)

	if d.cfg.HardRestartThreshold > 0 && d.exhaustedStreak >= d.cfg.HardRestartThreshold*10 {
		d.hardRestart("rotation exhausted repeatedly")
		return
	}

	d.stopRetryTimer()
	d.retryTimer = time.AfterFunc(d.cfg.ExhaustedRetryInterval, func() {
		d.post(func(ctx context.Context) {
			if d.phase == PhaseExhausted {
				d.advance(ctx, d.now())
			}
		})
	})
}

// scheduleReload retries the playlist load while the player is degraded
// (no snapshot at all).
func (d *Director) scheduleReload() {
	d.stopRetryTimer()
	d.retryTimer = time.AfterFunc(d.cfg.ExhaustedRetryInterval, func() {
		d.post(func(ctx context.Context) {
			if d.phase != PhaseDegraded {
				return
			}
			if err := d.load(ctx); err != nil {
				d.logger.Warn().Err(err).Msg("playlist load retry failed")
				d.scheduleReload()
				return
			}
			d.restorePosition(ctx)
			d.requestVendorRefresh(ctx)
			d.advance(ctx, d.now())
		})
	})
}

func (d *Director) stopRetryTimer() {
	if d.retryTimer != nil {
		d.retryTimer.Stop()
		d.retryTimer = nil
	}
}

// requestVendorRefresh restocks the vendor pool off the command loop; the
// swap is posted back so pool state stays loop-owned.
func (d *Director) requestVendorRefresh(ctx context.Context) {
	if d.vendors == nil || d.vendorRefreshing {
		return
	}
	d.vendorRefreshing = true
	go func() {
		fetchCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		pool, err := d.vendors.FetchVendorPool(fetchCtx)
		if err != nil {
			d.logger.Warn().Err(err).Msg("vendor pool fetch failed, requesting renewal")
			if renewErr := d.vendors.RequestRenewal(fetchCtx); renewErr != nil {
				d.logger.Debug().Err(renewErr).Msg("vendor renewal request failed")
			}
		}
		d.post(func(context.Context) {
			d.vendorRefreshing = false
			if err != nil {
				return
			}
			d.snapshot.VendorPool = pool
			d.state.VendorPoolIndex = 0
			d.logger.Info().Int("creatives", len(pool)).Msg("vendor pool refreshed")
			if d.bus != nil {
				d.bus.Publish(events.EventVendorRefresh, events.Payload{"creatives": len(pool)})
			}
		})
	}()
	_ = ctx
}

// setOperating applies the companion server's operation-hours signal.
// Outside operating hours the screen goes dark; resuming picks the
// rotation back up from the persisted cursor.
func (d *Director) setOperating(ctx context.Context, operating bool) {
	if operating == d.operating {
		return
	}
	d.operating = operating
	if !operating {
		d.logger.Info().Msg("outside operating hours, pausing playback")
		d.driver.Cancel()
		d.state.CurrentlyShown = nil
		d.state.LivestreamOverrideActive = false
		d.phase = PhasePaused
		return
	}
	d.logger.Info().Msg("operating hours resumed")
	d.advance(ctx, d.now())
}

func (d *Director) hardRestart(reason string) {
	d.logger.Error().Str("reason", reason).Msg("requesting hard restart")
	d.driver.Cancel()
	d.phase = PhaseIdle
	d.exhaustedStreak = 0
	if d.bus != nil {
		d.bus.Publish(events.EventHardRestart, events.Payload{"reason": reason})
	}
}
