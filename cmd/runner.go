package main

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"tunesync/internal/auth"
	"tunesync/internal/matching"
	"tunesync/internal/providers"
	"tunesync/internal/scheduler"
	"tunesync/internal/shared"
	"tunesync/internal/store"
	"tunesync/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	logger *log.Logger
	output io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Logger *log.Logger
	Output io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		logger: opts.Logger,
		output: opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, authCommand, profileCommand, syncCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// stack is the wired service graph for one command invocation.
type stack struct {
	config    *shared.Config
	db        *sql.DB
	store     store.Store
	auth      *auth.Manager
	providers map[string]providers.Provider
	executor  *tasks.Executor
	scheduler *scheduler.Scheduler
}

func (s *stack) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// loadConfig reads the config file at path, falling back to embedded
// defaults when it is absent or unreadable.
func (r *Runner) loadConfig(path string) *shared.Config {
	if _, err := os.Stat(path); err == nil {
		if config, err := shared.LoadConfig(path); err == nil {
			return config
		} else {
			r.logger.Warn("failed to load config, using defaults", "error", err)
		}
	}
	return shared.DefaultConfig()
}

// openStack opens the database and wires the sync service graph.
func (r *Runner) openStack(configPath string) (*stack, error) {
	config := r.loadConfig(configPath)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	protectorKey := config.Protector.Key
	if protectorKey == "" {
		// Tokens protected with an ephemeral key are unreadable after
		// restart; fine for trying things out, not for real use.
		r.logger.Warn("protector.key is empty, using an ephemeral key")
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
		}
		protectorKey = hex.EncodeToString(buf)
	}

	protector, err := auth.NewTokenProtector(protectorKey)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create token protector: %w", err)
	}

	st := store.NewSQLiteStore(db)
	authManager := auth.NewManager(st, protector, config.Credentials, r.logger)

	matcher := matching.NewMatcher(r.logger)
	provs := map[string]providers.Provider{
		auth.ProviderSpotify:    providers.NewSpotify(r.logger, matcher, ""),
		auth.ProviderSoundCloud: providers.NewSoundCloud(r.logger, matcher, ""),
	}

	executor := tasks.NewExecutor(st, provs, authManager, r.logger)
	sched := scheduler.NewScheduler(st, executor, r.logger)

	return &stack{
		config:    config,
		db:        db,
		store:     st,
		auth:      authManager,
		providers: provs,
		executor:  executor,
		scheduler: sched,
	}, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
