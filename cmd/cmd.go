// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func userFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "user",
		Aliases: []string{"u"},
		Usage:   "External user identifier",
		Value:   "local",
	}
}

// setupCommand handles setup operations for database and configuration.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
		},
	}
}

// serveCommand starts the HTTP API and schedule runner.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the sync API server",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Serve,
	}
}

// authCommand handles provider connections.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Provider authorization",
		Commands: []*cli.Command{
			{
				Name:  "url",
				Usage: "Print an OAuth authorization URL for a provider",
				Flags: []cli.Flag{
					configFlag(),
					userFlag(),
					&cli.StringFlag{
						Name:     "provider",
						Aliases:  []string{"p"},
						Usage:    "Provider name (spotify or soundcloud)",
						Required: true,
					},
				},
				Action: r.AuthURL,
			},
			{
				Name:  "status",
				Usage: "Show provider connection status",
				Flags: []cli.Flag{
					configFlag(),
					userFlag(),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.AuthStatus,
			},
		},
	}
}

// profileCommand manages the sync profile.
func profileCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Sync profile management",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the sync profile",
				Flags: []cli.Flag{
					configFlag(),
					userFlag(),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.ProfileShow,
			},
			{
				Name:  "set",
				Usage: "Update direction, likes behavior, and playlist mappings",
				Flags: []cli.Flag{
					configFlag(),
					userFlag(),
					&cli.StringFlag{
						Name:  "direction",
						Usage: "Sync direction (one_way or two_way)",
					},
					&cli.StringFlag{
						Name:  "likes",
						Usage: "Likes behavior (disabled, source_to_target, two_way)",
					},
					&cli.StringSliceFlag{
						Name:  "map",
						Usage: "Playlist mapping: source-provider,source-playlist,target-provider[,target-playlist] (repeatable, replaces existing)",
					},
				},
				Action: r.ProfileSet,
			},
			{
				Name:  "schedule",
				Usage: "Set or disable the cron schedule",
				Flags: []cli.Flag{
					configFlag(),
					userFlag(),
					&cli.StringFlag{
						Name:  "cron",
						Usage: "Cron expression, at least 15 minutes between runs",
					},
					&cli.StringFlag{
						Name:  "tz",
						Usage: "IANA time zone for the schedule",
						Value: "UTC",
					},
					&cli.BoolFlag{
						Name:  "disable",
						Usage: "Disable the schedule",
					},
				},
				Action: r.ProfileSchedule,
			},
		},
	}
}

// syncCommand runs syncs and inspects their history.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run syncs and inspect run history",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Execute the sync profile once",
				Flags: []cli.Flag{
					configFlag(),
					userFlag(),
					&cli.StringFlag{
						Name:    "key",
						Aliases: []string{"k"},
						Usage:   "Idempotency key (generated when empty)",
					},
				},
				Action: r.SyncRun,
			},
			{
				Name:  "runs",
				Usage: "List recent sync runs",
				Flags: []cli.Flag{
					configFlag(),
					userFlag(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs to return",
						Value: 25,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SyncRuns,
			},
		},
	}
}
