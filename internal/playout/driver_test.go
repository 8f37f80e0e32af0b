package playout

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/signbeam/signbeam_player/internal/models"
)

type endRecorder struct {
	mu     sync.Mutex
	events []EndEvent
}

func (r *endRecorder) record(ev EndEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *endRecorder) snapshot() []EndEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EndEvent(nil), r.events...)
}

func testDriverConfig() DriverConfig {
	return DriverConfig{
		DefaultDuration:    20 * time.Millisecond,
		StuckSafetyDefault: 30 * time.Millisecond,
		SafetyFactor:       1.5,
		LiveStreamDuration: 10 * time.Millisecond,
	}
}

func waitForEvents(t *testing.T, rec *endRecorder, n int) []EndEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if evs := rec.snapshot(); len(evs) >= n {
			return evs
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d end events, have %d", n, len(rec.snapshot()))
	return nil
}

func TestDriver_ImageEndsOnDisplayTimer(t *testing.T) {
	t.Parallel()

	rec := &endRecorder{}
	d := NewDriver(testDriverConfig(), rec.record, zerolog.Nop())

	d.Arm(models.PlaylistItem{ID: "img", MediaKind: models.MediaImage})

	evs := waitForEvents(t, rec, 1)
	if evs[0].Reason != EndTimer || evs[0].Item.ID != "img" {
		t.Fatalf("got %+v, want timer end for img", evs[0])
	}
}

func TestDriver_ConfiguredDurationOverridesDefault(t *testing.T) {
	t.Parallel()

	rec := &endRecorder{}
	d := NewDriver(testDriverConfig(), rec.record, zerolog.Nop())

	start := time.Now()
	d.Arm(models.PlaylistItem{ID: "img", MediaKind: models.MediaImage, DurationSeconds: 0.05})

	evs := waitForEvents(t, rec, 1)
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("timer fired after %v, configured duration is 50ms", elapsed)
	}
	if evs[0].Reason != EndTimer {
		t.Fatalf("got reason %s, want timer", evs[0].Reason)
	}
}

func TestDriver_VideoNaturalEndBeatsSafety(t *testing.T) {
	t.Parallel()

	rec := &endRecorder{}
	d := NewDriver(testDriverConfig(), rec.record, zerolog.Nop())

	d.Arm(models.PlaylistItem{ID: "vid", MediaKind: models.MediaVideo, DurationSeconds: 1})
	d.NaturalEnd()

	evs := waitForEvents(t, rec, 1)
	if evs[0].Reason != EndNatural {
		t.Fatalf("got reason %s, want natural", evs[0].Reason)
	}

	// The safety timer for this generation must now be dead.
	time.Sleep(60 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 1 {
		t.Fatalf("expected exactly one end event, got %d", len(got))
	}
}

func TestDriver_VideoStuckFiresSafety(t *testing.T) {
	t.Parallel()

	rec := &endRecorder{}
	d := NewDriver(testDriverConfig(), rec.record, zerolog.Nop())

	// No natural end ever arrives; the safety timer has to fire.
	d.Arm(models.PlaylistItem{ID: "vid", MediaKind: models.MediaVideo})

	evs := waitForEvents(t, rec, 1)
	if evs[0].Reason != EndStuck {
		t.Fatalf("got reason %s, want stuck", evs[0].Reason)
	}
}

func TestDriver_EndingTwiceIsIdempotent(t *testing.T) {
	t.Parallel()

	rec := &endRecorder{}
	d := NewDriver(testDriverConfig(), rec.record, zerolog.Nop())

	d.Arm(models.PlaylistItem{ID: "vid", MediaKind: models.MediaVideo, DurationSeconds: 1})
	d.NaturalEnd()
	d.NaturalEnd()
	d.RenderError()

	time.Sleep(20 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 1 {
		t.Fatalf("expected exactly one end event, got %d", len(got))
	}
}

func TestDriver_CancelSuppressesEndEvents(t *testing.T) {
	t.Parallel()

	rec := &endRecorder{}
	d := NewDriver(testDriverConfig(), rec.record, zerolog.Nop())

	d.Arm(models.PlaylistItem{ID: "img", MediaKind: models.MediaImage})
	d.Cancel()

	time.Sleep(60 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("cancelled item must not emit end events, got %d", len(got))
	}
}

func TestDriver_ReArmInvalidatesOldTimers(t *testing.T) {
	t.Parallel()

	rec := &endRecorder{}
	d := NewDriver(testDriverConfig(), rec.record, zerolog.Nop())

	d.Arm(models.PlaylistItem{ID: "first", MediaKind: models.MediaImage})
	d.Arm(models.PlaylistItem{ID: "second", MediaKind: models.MediaImage})

	evs := waitForEvents(t, rec, 1)
	if evs[0].Item.ID != "second" {
		t.Fatalf("end event for %s, want second", evs[0].Item.ID)
	}
}

func TestDriver_LiveStreamUsesShortCycle(t *testing.T) {
	t.Parallel()

	rec := &endRecorder{}
	d := NewDriver(testDriverConfig(), rec.record, zerolog.Nop())

	start := time.Now()
	d.Arm(models.PlaylistItem{ID: "live", MediaKind: models.MediaLiveStream, DurationSeconds: 600})

	evs := waitForEvents(t, rec, 1)
	if evs[0].Reason != EndTimer {
		t.Fatalf("got reason %s, want timer", evs[0].Reason)
	}
	// The configured duration must be ignored for live streams.
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("live stream cycle took %v", elapsed)
	}
}

func TestDriver_Current(t *testing.T) {
	t.Parallel()

	d := NewDriver(testDriverConfig(), func(EndEvent) {}, zerolog.Nop())

	if _, ok := d.Current(); ok {
		t.Fatal("fresh driver should report no armed item")
	}

	d.Arm(models.PlaylistItem{ID: "vid", MediaKind: models.MediaVideo, DurationSeconds: 10})
	item, ok := d.Current()
	if !ok || item.ID != "vid" {
		t.Fatalf("got %v %v, want vid armed", item.ID, ok)
	}

	d.Cancel()
	if _, ok := d.Current(); ok {
		t.Fatal("cancelled driver should report no armed item")
	}
}
