/*
Copyright (C) 2026 SignBeam Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Legacy play_type codes used by the companion server's playlist rows.
const (
	playTypeDefault         = 1
	playTypeDoNotPlay       = 2
	playTypeCustomScheduled = 3
)

// PlaylistContentDTO mirrors one playlist row as the companion server
// serves it. All schedule fields keep their legacy textual encodings; the
// mapping to typed values happens here and nowhere else.
type PlaylistContentDTO struct {
	PlaylistContentID string  `json:"playlist_content_id"`
	ContentID         string  `json:"content_id"`
	Title             string  `json:"title"`
	FileName          string  `json:"file_name"`
	FileType          string  `json:"file_type"`
	Classification    string  `json:"classification"`
	URL               string  `json:"url"`
	Sequence          int     `json:"sequence"`
	Duration          float64 `json:"duration"`
	IsFullscreen      int     `json:"is_fullscreen"`
	PlayType          string  `json:"play_type"`
	DateFrom          string  `json:"date_from"`
	DateTo            string  `json:"date_to"`
	PlayDays          string  `json:"play_days"`
	PlayTimeStart     string  `json:"play_time_start"`
	PlayTimeEnd       string  `json:"play_time_end"`
	ProofOfPlay       string  `json:"proof_of_play"`
}

// ToItem converts a companion playlist row into a PlaylistItem.
func (d PlaylistContentDTO) ToItem() PlaylistItem {
	id := d.PlaylistContentID
	if id == "" {
		id = uuid.NewString()
	}
	return PlaylistItem{
		ID:               id,
		SequenceIndex:    d.Sequence,
		DurationSeconds:  d.Duration,
		MediaKind:        kindFromFileType(d.FileType, d.Classification),
		Schedule:         ruleFromLegacy(d),
		IsFullscreen:     d.IsFullscreen != 0,
		ProofOfPlayToken: d.ProofOfPlay,
		Title:            d.Title,
		FileName:         d.FileName,
		URL:              d.URL,
	}
}

// ProgrammaticAdDTO mirrors one vendor creative from the ad exchange.
type ProgrammaticAdDTO struct {
	ID             string  `json:"id"`
	CreativeName   string  `json:"creative_name"`
	CreativeURL    string  `json:"creative_url"`
	CreativeSource string  `json:"creative_source"`
	CreativeType   string  `json:"creative_type"`
	Duration       float64 `json:"duration"`
	ProofOfPlay    string  `json:"proof_of_play"`
	Played         int     `json:"played"`
}

// ProgrammaticAdsResponse is the envelope around the vendor pool payload.
type ProgrammaticAdsResponse struct {
	Status string              `json:"status"`
	Data   []ProgrammaticAdDTO `json:"data"`
}

// ToItem converts a vendor creative into a PlaylistItem. Vendor items are
// always eligible; their cadence is controlled by the interleaver, not by
// schedule rules.
func (d ProgrammaticAdDTO) ToItem() PlaylistItem {
	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}
	return PlaylistItem{
		ID:               id,
		DurationSeconds:  d.Duration,
		MediaKind:        kindFromFileType(d.CreativeType, ""),
		Schedule:         ScheduleRule{Kind: RuleDefault},
		IsFullscreen:     true,
		IsProgrammatic:   true,
		ProofOfPlayToken: d.ProofOfPlay,
		Title:            d.CreativeName,
		URL:              d.CreativeURL,
	}
}

func kindFromFileType(fileType, classification string) MediaKind {
	switch strings.ToLower(fileType) {
	case "webm", "mp4", "mov", "avi", "video":
		return MediaVideo
	case "feed":
		if strings.EqualFold(classification, string(MediaLiveStream)) {
			return MediaLiveStream
		}
		return MediaFeed
	default:
		return MediaImage
	}
}

func ruleFromLegacy(d PlaylistContentDTO) ScheduleRule {
	code, err := strconv.Atoi(strings.TrimSpace(d.PlayType))
	if err != nil {
		code = playTypeDefault
	}

	switch code {
	case playTypeDoNotPlay:
		return ScheduleRule{Kind: RuleDoNotPlay}
	case playTypeCustomScheduled:
		return ScheduleRule{
			Kind: RuleCustomWindow,
			Window: CustomWindow{
				DateFrom:  parseDate(d.DateFrom),
				DateTo:    parseDate(d.DateTo),
				Days:      parsePlayDays(d.PlayDays),
				TimeStart: d.PlayTimeStart,
				TimeEnd:   d.PlayTimeEnd,
			},
		}
	default:
		return ScheduleRule{Kind: RuleDefault}
	}
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05", "01/02/2006"}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parsePlayDays(s string) [7]bool {
	var days [7]bool
	for _, part := range strings.Split(s, ",") {
		day, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || day < 0 || day > 6 {
			continue
		}
		days[day] = true
	}
	return days
}
