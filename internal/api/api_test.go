package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/signbeam/signbeam_player/internal/events"
	"github.com/signbeam/signbeam_player/internal/models"
	"github.com/signbeam/signbeam_player/internal/playout"
	"github.com/signbeam/signbeam_player/internal/version"
)

type fakeCompanion struct{}

func (fakeCompanion) FetchPlaylist(ctx context.Context, playlistID string) (*models.PlaylistSnapshot, error) {
	return &models.PlaylistSnapshot{
		PlaylistID: playlistID,
		Items: []models.PlaylistItem{
			{
				ID:              "img-a",
				MediaKind:       models.MediaImage,
				DurationSeconds: 3600,
				Schedule:        models.ScheduleRule{Kind: models.RuleDefault},
			},
			{
				ID:              "img-b",
				MediaKind:       models.MediaImage,
				DurationSeconds: 3600,
				Schedule:        models.ScheduleRule{Kind: models.RuleDefault},
			},
		},
		FetchedAt: time.Now(),
	}, nil
}

func (fakeCompanion) FetchVendorPool(ctx context.Context) ([]models.PlaylistItem, error) {
	return nil, nil
}

func (fakeCompanion) RequestRenewal(ctx context.Context) error { return nil }

func (fakeCompanion) ReportPlayed(ctx context.Context, item models.PlaylistItem) error { return nil }

func testServer(t *testing.T) (*httptest.Server, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	bus := events.NewBus()
	companion := fakeCompanion{}
	director, err := playout.New(playout.Config{PlaylistID: "pl-1"}, companion, companion, companion, nil, db, bus, zerolog.Nop())
	if err != nil {
		t.Fatalf("new director: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go director.Run(ctx)

	// Wait for the rotation to start before poking the API.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if status, ok := director.Status(); ok && status.CurrentItem != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("director never started showing content")
		}
		time.Sleep(5 * time.Millisecond)
	}

	router := chi.NewRouter()
	New(director, db, bus, nil, zerolog.Nop()).Routes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, db
}

func getJSON(t *testing.T, url string, dest any) int {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postStatus(t *testing.T, url string) int {
	t.Helper()

	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestAPI_Health(t *testing.T) {
	t.Parallel()

	srv, _ := testServer(t)

	var body map[string]string
	if code := getJSON(t, srv.URL+"/healthz", &body); code != http.StatusOK {
		t.Fatalf("healthz status %d", code)
	}
	if body["status"] != "ok" {
		t.Fatalf("healthz body %v", body)
	}
}

func TestAPI_Status(t *testing.T) {
	t.Parallel()

	srv, _ := testServer(t)

	var status playout.Status
	if code := getJSON(t, srv.URL+"/api/v1/status", &status); code != http.StatusOK {
		t.Fatalf("status endpoint %d", code)
	}
	if status.CurrentItem == nil || status.ItemCount != 2 {
		t.Fatalf("status %+v", status)
	}
	if status.Phase != playout.PhasePlaying {
		t.Fatalf("phase %s, want playing", status.Phase)
	}
}

func TestAPI_SkipAdvancesRotation(t *testing.T) {
	t.Parallel()

	srv, _ := testServer(t)

	var before playout.Status
	getJSON(t, srv.URL+"/api/v1/status", &before)

	if code := postStatus(t, srv.URL+"/api/v1/playback/skip"); code != http.StatusAccepted {
		t.Fatalf("skip status %d", code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		var after playout.Status
		getJSON(t, srv.URL+"/api/v1/status", &after)
		if after.CurrentItem != nil && after.CurrentItem.ID != before.CurrentItem.ID {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("skip never advanced past %s", before.CurrentItem.ID)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAPI_PlaybackEndedAdvances(t *testing.T) {
	t.Parallel()

	srv, _ := testServer(t)

	var before playout.Status
	getJSON(t, srv.URL+"/api/v1/status", &before)

	if code := postStatus(t, srv.URL+"/api/v1/playback/ended"); code != http.StatusOK {
		t.Fatalf("ended status %d", code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		var after playout.Status
		getJSON(t, srv.URL+"/api/v1/status", &after)
		if after.CurrentItem != nil && after.CurrentItem.ID != before.CurrentItem.ID {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("natural end never advanced the rotation")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAPI_LogsReturnsJournal(t *testing.T) {
	t.Parallel()

	srv, db := testServer(t)

	entry := models.PlayLog{ID: "row-1", ItemID: "img-a", MediaKind: models.MediaImage, EndReason: "timer"}
	if err := db.Create(&entry).Error; err != nil {
		t.Fatalf("seed journal: %v", err)
	}

	var logs []models.PlayLog
	if code := getJSON(t, srv.URL+"/api/v1/logs", &logs); code != http.StatusOK {
		t.Fatalf("logs status %d", code)
	}
	if len(logs) == 0 {
		t.Fatal("expected at least the seeded journal row")
	}
}

func TestAPI_PositionReset(t *testing.T) {
	t.Parallel()

	srv, _ := testServer(t)

	if code := postStatus(t, srv.URL+"/api/v1/position/reset"); code != http.StatusAccepted {
		t.Fatalf("reset status %d", code)
	}
}

func TestAPI_VersionWithoutChecker(t *testing.T) {
	t.Parallel()

	srv, _ := testServer(t)

	var info version.Info
	if code := getJSON(t, srv.URL+"/api/v1/version", &info); code != http.StatusOK {
		t.Fatalf("version status %d", code)
	}
	if info.Current != version.Version {
		t.Fatalf("current %q, want %q", info.Current, version.Version)
	}
	if info.UpdateAvailable {
		t.Fatal("no checker wired, update must not be flagged")
	}
}
