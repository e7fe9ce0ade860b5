// Package scheduler drives recurring sync runs from profile cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"tunesync/internal/models"
	"tunesync/internal/shared"
	"tunesync/internal/store"
	"tunesync/internal/tasks"
)

// minInterval is the tightest schedule a profile may request.
const minInterval = 15 * time.Minute

const scheduledRunTimeout = 10 * time.Minute

// scheduleParser accepts 5-field expressions plus an optional seconds field.
var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Runner executes a sync for one user. Satisfied by *tasks.Executor.
type Runner interface {
	ExecuteForUser(ctx context.Context, userAccountID, idempotencyKey string, progress chan<- tasks.ProgressUpdate) (*models.SyncJob, *models.SyncRun, error)
}

// ValidateCron normalizes and validates a cron expression: parseable, and
// with consecutive firings at least the minimum interval apart.
func ValidateCron(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", fmt.Errorf("%w: cron expression is required", shared.ErrInvalidSchedule)
	}

	schedule, err := scheduleParser.Parse(expr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidSchedule, err)
	}

	now := time.Now().UTC()
	first := schedule.Next(now)
	second := schedule.Next(first)
	if first.IsZero() || second.IsZero() {
		return "", fmt.Errorf("%w: expression produces no future schedules", shared.ErrInvalidSchedule)
	}
	if second.Sub(first) < minInterval {
		return "", fmt.Errorf("%w: minimum supported interval is %s", shared.ErrInvalidSchedule, minInterval)
	}

	return expr, nil
}

// Scheduler keeps one cron entry per user with an enabled schedule.
type Scheduler struct {
	cron   *cron.Cron
	store  store.Store
	runner Runner
	logger *log.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// NewScheduler creates a stopped scheduler; call Start to begin firing.
func NewScheduler(s store.Store, runner Runner, logger *log.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithParser(scheduleParser), cron.WithLocation(time.UTC)),
		store:   s,
		runner:  runner,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Start begins firing registered schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts firing and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RegisterOrUpdate replaces the user's cron entry with one for the given
// expression and timezone.
func (s *Scheduler) RegisterOrUpdate(userAccountID, cronExpr, timeZone string) error {
	normalized, err := ValidateCron(cronExpr)
	if err != nil {
		return err
	}

	spec := normalized
	if timeZone != "" && !strings.EqualFold(timeZone, "UTC") {
		if _, err := time.LoadLocation(timeZone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", shared.ErrInvalidSchedule, timeZone)
		}
		spec = "CRON_TZ=" + timeZone + " " + normalized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[userAccountID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, userAccountID)
	}

	entryID, err := s.cron.AddFunc(spec, func() { s.runScheduled(userAccountID) })
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidSchedule, err)
	}
	s.entries[userAccountID] = entryID

	s.logger.Info("schedule registered", "user", userAccountID, "cron", normalized, "tz", timeZone)
	return nil
}

// Remove drops the user's cron entry, if any.
func (s *Scheduler) Remove(userAccountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[userAccountID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, userAccountID)
		s.logger.Info("schedule removed", "user", userAccountID)
	}
}

// RegisterAll loads every enabled profile schedule. Called at startup;
// individual registration failures are logged, not fatal.
func (s *Scheduler) RegisterAll(ctx context.Context) error {
	profiles, err := s.store.ListScheduledProfiles(ctx)
	if err != nil {
		return fmt.Errorf("listing scheduled profiles: %w", err)
	}

	for _, profile := range profiles {
		if err := s.RegisterOrUpdate(profile.UserAccountID, profile.ScheduleCron, profile.ScheduleTimeZone); err != nil {
			s.logger.Error("skipping schedule", "user", profile.UserAccountID, "err", err)
		}
	}
	return nil
}

func (s *Scheduler) runScheduled(userAccountID string) {
	ctx, cancel := context.WithTimeout(context.Background(), scheduledRunTimeout)
	defer cancel()

	now := time.Now().UTC()
	key := fmt.Sprintf("scheduled-%s%03d", now.Format("20060102150405"), now.Nanosecond()/int(time.Millisecond))

	job, _, err := s.runner.ExecuteForUser(ctx, userAccountID, key, nil)
	if err != nil {
		s.logger.Error("scheduled sync failed", "user", userAccountID, "err", err)
		return
	}
	s.logger.Info("scheduled sync finished", "user", userAccountID, "job", job.ID, "status", job.Status)
}
