/*
Copyright (C) 2026 SignBeam Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestCompareVersions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "1.0.1", -1},
		{"1.2.0", "1.1.9", 1},
		{"2.3.0", "v2.4.0", -1},
		{"v1.15.42", "1.15.42", 0},
		{"1.9", "1.10.0", -1},
	}
	for _, tc := range cases {
		if got := compareVersions(tc.a, tc.b); got != tc.want {
			t.Errorf("compareVersions(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestCheckerFlagsNewerRelease(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tag_name":"v99.0.0"}`))
	}))
	defer srv.Close()

	c := NewChecker(zerolog.Nop())
	c.client = srv.Client()
	latest, err := c.fetchLatestFrom(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch latest: %v", err)
	}
	if latest != "99.0.0" {
		t.Fatalf("latest %q, want 99.0.0", latest)
	}
	if compareVersions(Version, latest) >= 0 {
		t.Fatalf("version %s should be older than %s", Version, latest)
	}
}

func TestCheckerInfoBeforeFirstCheck(t *testing.T) {
	t.Parallel()

	c := NewChecker(zerolog.Nop())
	info := c.Info()
	if info.Current != Version {
		t.Fatalf("current %q, want %q", info.Current, Version)
	}
	if info.UpdateAvailable || !info.CheckedAt.IsZero() {
		t.Fatalf("unchecked info should be empty, got %+v", info)
	}
}
