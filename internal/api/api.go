/*
Copyright (C) 2026 SignBeam Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api is the local control surface for the player: status,
// rendering-surface callbacks, and manual operator controls.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/signbeam/signbeam_player/internal/events"
	"github.com/signbeam/signbeam_player/internal/models"
	"github.com/signbeam/signbeam_player/internal/playout"
	"github.com/signbeam/signbeam_player/internal/telemetry"
	"github.com/signbeam/signbeam_player/internal/version"
)

// API wires the HTTP handlers to the director.
type API struct {
	director *playout.Director
	db       *gorm.DB
	bus      *events.Bus
	checker  *version.Checker
	logger   zerolog.Logger
}

// New creates the API. checker may be nil; /version then reports the build
// version alone.
func New(director *playout.Director, db *gorm.DB, bus *events.Bus, checker *version.Checker, logger zerolog.Logger) *API {
	return &API{
		director: director,
		db:       db,
		bus:      bus,
		checker:  checker,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts the API routes on r.
func (a *API) Routes(r chi.Router) {
	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", a.handleStatus)
		r.Get("/version", a.handleVersion)
		r.Get("/logs", a.handleLogs)
		r.Get("/ws", a.handleWebSocket)

		r.Route("/playback", func(r chi.Router) {
			r.Post("/ended", a.handlePlaybackEnded)
			r.Post("/error", a.handlePlaybackError)
			r.Post("/skip", a.handleSkip)
		})

		r.Post("/playlist/refresh", a.handleRefresh)
		r.Post("/position/reset", a.handlePositionReset)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	if a.checker == nil {
		writeJSON(w, http.StatusOK, version.Info{Current: version.Version})
		return
	}
	writeJSON(w, http.StatusOK, a.checker.Info())
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := a.director.Status()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "director_not_running")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handlePlaybackEnded is the rendering surface telling us a video reached
// its natural end. The director publishes the end event once it has
// processed the signal.
func (a *API) handlePlaybackEnded(w http.ResponseWriter, r *http.Request) {
	a.director.NaturalEnd()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePlaybackError is the rendering surface reporting a failed render.
func (a *API) handlePlaybackError(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Detail string `json:"detail"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	a.logger.Warn().Str("detail", body.Detail).Msg("render surface reported error")
	a.director.RenderError()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleSkip(w http.ResponseWriter, r *http.Request) {
	a.director.Skip()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "skipping"})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	a.director.Refresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
}

func (a *API) handlePositionReset(w http.ResponseWriter, r *http.Request) {
	a.director.ResetPosition()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reset"})
}

// handleLogs returns the most recent play journal entries, newest first.
func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	if a.db == nil {
		writeError(w, http.StatusNotImplemented, "journal_disabled")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	var logs []models.PlayLog
	if err := a.db.WithContext(r.Context()).Order("created_at DESC").Limit(limit).Find(&logs).Error; err != nil {
		a.logger.Error().Err(err).Msg("play journal query failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// handleWebSocket pushes item-change events to the rendering surface.
func (a *API) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusNormalClosure, "closing")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	sub := a.bus.Subscribe(events.EventItemChanged)
	defer a.bus.Unsubscribe(events.EventItemChanged, sub)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, map[string]any{
				"event": string(events.EventItemChanged),
				"data":  payload,
			})
			cancel()
			if err != nil {
				a.logger.Debug().Err(err).Msg("websocket push failed")
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
