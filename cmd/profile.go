package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"tunesync/internal/formatter"
	"tunesync/internal/models"
	"tunesync/internal/scheduler"
	"tunesync/internal/shared"
)

// ProfileShow prints the user's sync profile.
func (r *Runner) ProfileShow(ctx context.Context, cmd *cli.Command) error {
	stack, err := r.openStack(cmd.String("config"))
	if err != nil {
		return err
	}
	defer stack.Close()

	user, err := stack.store.GetOrCreateUser(ctx, cmd.String("user"))
	if err != nil {
		return err
	}

	profile, err := stack.store.GetOrCreateProfile(ctx, user.ID)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(profile, true)
	}
	return r.writePlain("%s", formatter.FormatProfile(profile))
}

// ProfileSet updates direction, likes behavior, and playlist mappings.
func (r *Runner) ProfileSet(ctx context.Context, cmd *cli.Command) error {
	stack, err := r.openStack(cmd.String("config"))
	if err != nil {
		return err
	}
	defer stack.Close()

	user, err := stack.store.GetOrCreateUser(ctx, cmd.String("user"))
	if err != nil {
		return err
	}

	profile, err := stack.store.GetOrCreateProfile(ctx, user.ID)
	if err != nil {
		return err
	}

	if value := cmd.String("direction"); value != "" {
		switch models.SyncDirection(value) {
		case models.DirectionOneWay, models.DirectionTwoWay:
			profile.Direction = models.SyncDirection(value)
		default:
			return fmt.Errorf("%w: direction %q", shared.ErrInvalidInput, value)
		}
	}

	if value := cmd.String("likes"); value != "" {
		switch models.LikesBehavior(value) {
		case models.LikesDisabled, models.LikesSourceToTarget, models.LikesTwoWay:
			profile.LikesBehavior = models.LikesBehavior(value)
		default:
			return fmt.Errorf("%w: likes behavior %q", shared.ErrInvalidInput, value)
		}
	}

	if specs := cmd.StringSlice("map"); len(specs) > 0 {
		mappings, err := parseMappings(specs)
		if err != nil {
			return err
		}
		profile.PlaylistMappings = mappings
	}

	if err := stack.store.UpdateProfile(ctx, profile); err != nil {
		return err
	}

	r.logger.Info("profile updated", "user", user.ExternalUserID)
	return r.writePlain("%s", formatter.FormatProfile(profile))
}

// ProfileSchedule sets or disables the cron schedule.
func (r *Runner) ProfileSchedule(ctx context.Context, cmd *cli.Command) error {
	stack, err := r.openStack(cmd.String("config"))
	if err != nil {
		return err
	}
	defer stack.Close()

	user, err := stack.store.GetOrCreateUser(ctx, cmd.String("user"))
	if err != nil {
		return err
	}

	profile, err := stack.store.GetOrCreateProfile(ctx, user.ID)
	if err != nil {
		return err
	}

	if cmd.Bool("disable") {
		profile.ScheduleEnabled = false
		profile.ScheduleCron = ""
		if err := stack.store.UpdateProfile(ctx, profile); err != nil {
			return err
		}
		return r.writePlain("Schedule disabled\n")
	}

	expr := cmd.String("cron")
	normalized, err := scheduler.ValidateCron(expr)
	if err != nil {
		return err
	}

	tz := cmd.String("tz")
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("%w: unknown time zone %q", shared.ErrInvalidSchedule, tz)
	}

	profile.ScheduleEnabled = true
	profile.ScheduleCron = expr
	profile.ScheduleTimeZone = tz
	if err := stack.store.UpdateProfile(ctx, profile); err != nil {
		return err
	}

	return r.writePlain("Schedule set: %s (%s), runs as %s\n", expr, tz, normalized)
}

// parseMappings parses comma separated mapping specs of the form
// "source-provider,source-playlist,target-provider[,target-playlist]".
func parseMappings(specs []string) ([]models.PlaylistMapping, error) {
	mappings := make([]models.PlaylistMapping, 0, len(specs))
	for _, spec := range specs {
		parts := strings.SplitN(spec, ",", 4)
		if len(parts) < 3 {
			return nil, fmt.Errorf("%w: mapping %q needs source-provider,source-playlist,target-provider", shared.ErrInvalidMapping, spec)
		}

		mapping := models.PlaylistMapping{
			SourceProvider:   strings.TrimSpace(parts[0]),
			SourcePlaylistID: strings.TrimSpace(parts[1]),
			TargetProvider:   strings.TrimSpace(parts[2]),
		}
		if len(parts) == 4 {
			mapping.TargetPlaylistID = strings.TrimSpace(parts[3])
		}
		if err := mapping.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidMapping, err)
		}
		mappings = append(mappings, mapping)
	}
	return mappings, nil
}
