package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"tunesync/internal/formatter"
	"tunesync/internal/tasks"
)

// SyncRun executes the user's sync profile once and prints the result.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	stack, err := r.openStack(cmd.String("config"))
	if err != nil {
		return err
	}
	defer stack.Close()

	user, err := stack.store.GetOrCreateUser(ctx, cmd.String("user"))
	if err != nil {
		return err
	}

	r.writePlain("Starting sync...\n\n")

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.FetchSource, tasks.SyncLikes:
				r.writePlain("📥 %s\n", update.Message)
			case tasks.CreateTarget:
				r.writePlain("📝 %s\n", update.Message)
			case tasks.ExportTracks:
				r.writePlain("📤 %s\n", update.Message)
			}
		}
	}()

	job, run, err := stack.executor.ExecuteForUser(ctx, user.ID, cmd.String("key"), progressCh)
	close(progressCh)
	<-done

	if err != nil {
		return err
	}

	r.writePlain("\n")
	if err := r.writePlain("%s", formatter.FormatJob(job)); err != nil {
		return err
	}
	if run != nil && run.Error != "" {
		r.writePlain("\nLast error: %s\n", run.Error)
	}
	return nil
}

// SyncRuns lists recent sync runs for the user.
func (r *Runner) SyncRuns(ctx context.Context, cmd *cli.Command) error {
	stack, err := r.openStack(cmd.String("config"))
	if err != nil {
		return err
	}
	defer stack.Close()

	user, err := stack.store.GetOrCreateUser(ctx, cmd.String("user"))
	if err != nil {
		return err
	}

	runs, err := stack.store.ListRunsByUser(ctx, user.ID, cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(runs, true)
	}
	return r.writePlain("%s", formatter.FormatRuns(runs))
}
