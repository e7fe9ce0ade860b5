package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"tunesync/internal/formatter"
)

// AuthURL prints an authorization URL for the given provider. Open it in a
// browser while the serve command is running to complete the flow.
func (r *Runner) AuthURL(ctx context.Context, cmd *cli.Command) error {
	stack, err := r.openStack(cmd.String("config"))
	if err != nil {
		return err
	}
	defer stack.Close()

	user, err := stack.store.GetOrCreateUser(ctx, cmd.String("user"))
	if err != nil {
		return err
	}

	url, err := stack.auth.StartAuthorization(ctx, user.ID, cmd.String("provider"))
	if err != nil {
		return err
	}

	r.writePlain("Open this URL in your browser to connect %s:\n\n%s\n", cmd.String("provider"), url)
	return nil
}

// AuthStatus prints the user's provider connections.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	stack, err := r.openStack(cmd.String("config"))
	if err != nil {
		return err
	}
	defer stack.Close()

	user, err := stack.store.GetOrCreateUser(ctx, cmd.String("user"))
	if err != nil {
		return err
	}

	statuses, err := stack.auth.Connections(ctx, user.ID)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(statuses, true)
	}
	return r.writePlain("%s", formatter.FormatConnections(statuses))
}
