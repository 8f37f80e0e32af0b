/*
Copyright (C) 2026 SignBeam Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package companion maintains the push channel from the on-site companion
// server: operation-hours status and remote control nudges arrive here and
// fan out over the event bus.
package companion

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/signbeam/signbeam_player/internal/events"
)

const (
	reconnectBase = time.Second
	reconnectMax  = 30 * time.Second
)

// socketMessage is one push frame from the companion server.
type socketMessage struct {
	Event           string          `json:"event"`
	OperationStatus *bool           `json:"operation_status,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
}

// Listener keeps a websocket session to the companion server alive and
// republishes its pushes on the event bus.
type Listener struct {
	url    string
	bus    *events.Bus
	logger zerolog.Logger
}

// NewListener creates a listener for the companion socket at url.
func NewListener(url string, bus *events.Bus, logger zerolog.Logger) *Listener {
	return &Listener{
		url:    url,
		bus:    bus,
		logger: logger.With().Str("component", "companion_socket").Logger(),
	}
}

// Run dials, listens, and reconnects with capped backoff until ctx is
// cancelled. A missing companion server degrades the player to always-on
// playback rather than stopping it.
func (l *Listener) Run(ctx context.Context) error {
	backoff := reconnectBase
	for {
		err := l.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("companion socket disconnected")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

func (l *Listener) session(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := ws.Dial(dialCtx, l.url, nil)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close(ws.StatusNormalClosure, "shutting down")

	l.logger.Info().Str("url", l.url).Msg("companion socket connected")

	// Subscribe to the schedule feed; the server answers with the current
	// operation status and pushes changes afterwards.
	if err := wsjson.Write(ctx, conn, map[string]string{"event": "start_schedule_check"}); err != nil {
		return err
	}

	for {
		var msg socketMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return err
		}
		l.dispatch(msg)
	}
}

func (l *Listener) dispatch(msg socketMessage) {
	switch msg.Event {
	case "schedule_status":
		if msg.OperationStatus == nil {
			return
		}
		l.logger.Debug().Bool("operating", *msg.OperationStatus).Msg("schedule status push")
		l.bus.Publish(events.EventScheduleStatus, events.Payload{"operating": *msg.OperationStatus})
	case "playlist_updated":
		l.bus.Publish(events.EventPlaylistUpdated, events.Payload{"source": "companion"})
	default:
		l.logger.Debug().Str("event", msg.Event).Msg("ignoring companion push")
	}
}
