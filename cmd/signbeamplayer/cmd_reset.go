/*
Copyright (C) 2026 SignBeam Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/signbeam/signbeam_player/internal/db"
	"github.com/signbeam/signbeam_player/internal/models"
)

var (
	resetForce    bool
	resetKeepLogs bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear persisted playback state",
	Long: `Reset the player's local state.

This command will:
- Delete the persisted playback position, so the next start begins at the
  top of the playlist
- Optionally keep the play journal

Examples:
  # Interactive reset (will prompt for confirmation)
  signbeamplayer reset

  # Force reset without confirmation
  signbeamplayer reset --force

  # Reset the position but keep the play journal
  signbeamplayer reset --force --keep-logs
`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "Skip confirmation prompt")
	resetCmd.Flags().BoolVar(&resetKeepLogs, "keep-logs", false, "Keep the play journal")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	if !resetForce {
		fmt.Println("This will delete the persisted playback position", promptSuffix())
		fmt.Print("Type 'yes' to confirm reset: ")
		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		response = strings.TrimSpace(strings.ToLower(response))
		if response != "yes" {
			fmt.Println("Reset cancelled.")
			return nil
		}
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close(database)

	logger.Info().Msg("clearing persisted playback position")
	if err := database.Where("1 = 1").Delete(&models.PlaybackPosition{}).Error; err != nil {
		logger.Debug().Err(err).Msg("position table delete (may not exist)")
	}

	if !resetKeepLogs {
		logger.Info().Msg("clearing play journal")
		if err := database.Where("1 = 1").Delete(&models.PlayLog{}).Error; err != nil {
			logger.Debug().Err(err).Msg("play journal delete (may not exist)")
		}
	}

	logger.Info().Msg("reset complete")
	return nil
}

func promptSuffix() string {
	if resetKeepLogs {
		return "(the play journal will be kept)."
	}
	return "and the play journal."
}
