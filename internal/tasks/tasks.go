package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"tunesync/internal/matching"
	"tunesync/internal/models"
	"tunesync/internal/providers"
	"tunesync/internal/retry"
	"tunesync/internal/shared"
	"tunesync/internal/store"
)

// TokenSource hands out plaintext access tokens per provider call.
type TokenSource interface {
	AccessToken(ctx context.Context, userAccountID, provider string) (string, error)
}

// Executor runs sync jobs for users.
//
// A job is the idempotency anchor: re-running with a key that already has a
// job replays the recorded outcome instead of syncing again. Each execution
// gets up to four attempts when failures are transient, and the final state
// is persisted whether the run succeeded or not.
type Executor struct {
	store     store.Store
	providers map[string]providers.Provider
	tokens    TokenSource
	logger    *log.Logger
	now       func() time.Time
}

// NewExecutor creates an executor over the given providers and token source.
func NewExecutor(s store.Store, provs map[string]providers.Provider, tokens TokenSource, logger *log.Logger) *Executor {
	return &Executor{
		store:     s,
		providers: provs,
		tokens:    tokens,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock overrides the executor's clock. Test hook.
func (e *Executor) SetClock(now func() time.Time) {
	e.now = now
}

// syncResult accumulates counts and warnings across one sync attempt.
type syncResult struct {
	imported     int
	exported     int
	mappingSkips int
	warnings     []string
}

func (r *syncResult) warnf(format string, args ...any) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

func (r *syncResult) skipped() int {
	skipped := r.imported - r.exported
	if skipped < 0 {
		skipped = 0
	}
	return skipped + r.mappingSkips
}

// ExecuteForUser runs (or replays) the sync job for (user, idempotencyKey).
//
// An empty key gets a generated one. Sync failures are captured on the
// returned job and run; the error return is reserved for persistence
// failures.
func (e *Executor) ExecuteForUser(ctx context.Context, userAccountID, idempotencyKey string, progress chan<- ProgressUpdate) (*models.SyncJob, *models.SyncRun, error) {
	if strings.TrimSpace(idempotencyKey) == "" {
		idempotencyKey = shared.GenerateID()
	}

	if job, run, ok, err := e.replay(ctx, userAccountID, idempotencyKey); err != nil {
		return nil, nil, err
	} else if ok {
		return job, run, nil
	}

	started := e.now().UTC()
	job := &models.SyncJob{
		ID:             shared.GenerateID(),
		UserAccountID:  userAccountID,
		IdempotencyKey: idempotencyKey,
		Status:         models.StatusRunning,
		StartedAt:      started,
	}
	if err := e.store.CreateJob(ctx, job); err != nil {
		// A concurrent request with the same key won the race.
		if errors.Is(err, shared.ErrDuplicateKey) {
			job, run, _, replayErr := e.replay(ctx, userAccountID, idempotencyKey)
			return job, run, replayErr
		}
		return nil, nil, fmt.Errorf("creating sync job: %w", err)
	}

	run := &models.SyncRun{
		ID:        shared.GenerateID(),
		SyncJobID: job.ID,
		Status:    models.StatusRunning,
		StartedAt: started,
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, nil, fmt.Errorf("creating sync run: %w", err)
	}

	var result syncResult
	runErr := retry.Do(ctx, e.logger, func(ctx context.Context) error {
		attempt, err := e.syncOnce(ctx, userAccountID, progress)
		result = attempt
		return err
	})

	ended := e.now().UTC()
	status := models.StatusCompleted
	errMsg := ""
	if runErr != nil {
		status = models.StatusFailed
		errMsg = runErr.Error()
		if len(result.warnings) > 0 {
			errMsg = errMsg + "; warnings: " + strings.Join(result.warnings, "; ")
		}
		e.logger.Error("sync run failed", "user", userAccountID, "err", runErr)
	} else if len(result.warnings) > 0 {
		e.logger.Warn("sync run completed with warnings", "user", userAccountID, "warnings", strings.Join(result.warnings, "; "))
	}

	run.Status = status
	run.EndedAt = &ended
	run.ImportedCount = result.imported
	run.ExportedCount = result.exported
	run.SkippedCount = result.skipped()
	run.Error = errMsg
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return nil, nil, fmt.Errorf("persisting sync run: %w", err)
	}

	job.Status = status
	job.EndedAt = &ended
	job.ImportedCount = run.ImportedCount
	job.ExportedCount = run.ExportedCount
	job.SkippedCount = run.SkippedCount
	job.Error = errMsg
	if err := e.store.UpdateJob(ctx, job); err != nil {
		return nil, nil, fmt.Errorf("persisting sync job: %w", err)
	}

	e.sendProgress(progress, persistUpdate(run.ImportedCount, run.ExportedCount, run.SkippedCount))
	return job, run, nil
}

func (e *Executor) replay(ctx context.Context, userAccountID, idempotencyKey string) (*models.SyncJob, *models.SyncRun, bool, error) {
	job, err := e.store.GetJobByKey(ctx, userAccountID, idempotencyKey)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil, false, nil
		}
		return nil, nil, false, fmt.Errorf("looking up sync job: %w", err)
	}

	run, err := e.store.LatestRunForJob(ctx, job.ID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, nil, false, fmt.Errorf("looking up sync run: %w", err)
	}

	e.logger.Debug("replaying sync job", "user", userAccountID, "key", idempotencyKey)
	return job, run, true, nil
}

// pass is one directional playlist transfer derived from a mapping.
type pass struct {
	sourceProvider   string
	sourcePlaylistID string
	targetProvider   string
	targetPlaylistID string
}

// syncOnce performs a single sync attempt over the user's profile. The
// returned result carries whatever counts accumulated before a failure.
func (e *Executor) syncOnce(ctx context.Context, userAccountID string, progress chan<- ProgressUpdate) (syncResult, error) {
	var result syncResult

	profile, err := e.store.GetOrCreateProfile(ctx, userAccountID)
	if err != nil {
		return result, fmt.Errorf("loading sync profile: %w", err)
	}
	e.sendProgress(progress, loadProfileUpdate(len(profile.PlaylistMappings)))

	passes := make([]pass, 0, len(profile.PlaylistMappings)*2)
	for _, mapping := range profile.PlaylistMappings {
		passes = append(passes, pass{
			sourceProvider:   mapping.SourceProvider,
			sourcePlaylistID: mapping.SourcePlaylistID,
			targetProvider:   mapping.TargetProvider,
			targetPlaylistID: mapping.TargetPlaylistID,
		})
		if profile.Direction == models.DirectionTwoWay {
			passes = append(passes, pass{
				sourceProvider:   mapping.TargetProvider,
				sourcePlaylistID: mapping.TargetPlaylistID,
				targetProvider:   mapping.SourceProvider,
				targetPlaylistID: mapping.SourcePlaylistID,
			})
		}
	}

	total := len(passes)
	for i, p := range passes {
		step := i + 1
		if err := e.syncPass(ctx, userAccountID, p, step, total, &result, progress); err != nil {
			if retry.IsTransient(err) || ctx.Err() != nil {
				return result, err
			}
			result.mappingSkips++
			result.warnf("mapping %s:%s -> %s: %v", p.sourceProvider, p.sourcePlaylistID, p.targetProvider, err)
			e.sendProgress(progress, skipMappingUpdate(step, total, err.Error()))
			e.logger.Warn("skipping mapping after permanent failure",
				"user", userAccountID, "source", p.sourceProvider, "target", p.targetProvider, "err", err)
		}
	}

	if err := e.syncLikes(ctx, userAccountID, profile, &result, progress); err != nil {
		return result, err
	}

	return result, nil
}

// syncPass moves one playlist from source to target. Mapping-level problems
// (unknown provider, missing token, unresolvable source playlist) skip the
// pass with a warning. Provider errors are returned for the caller to
// classify: transient ones abort the attempt, permanent ones degrade to a
// skipped mapping.
func (e *Executor) syncPass(ctx context.Context, userAccountID string, p pass, step, total int, result *syncResult, progress chan<- ProgressUpdate) error {
	source, ok := e.providers[p.sourceProvider]
	if !ok {
		result.mappingSkips++
		result.warnf("unsupported source provider %q", p.sourceProvider)
		e.sendProgress(progress, skipMappingUpdate(step, total, "unsupported source provider "+p.sourceProvider))
		return nil
	}
	target, ok := e.providers[p.targetProvider]
	if !ok {
		result.mappingSkips++
		result.warnf("unsupported target provider %q", p.targetProvider)
		e.sendProgress(progress, skipMappingUpdate(step, total, "unsupported target provider "+p.targetProvider))
		return nil
	}

	sourceToken, err := e.tokens.AccessToken(ctx, userAccountID, p.sourceProvider)
	if err != nil {
		result.mappingSkips++
		result.warnf("no usable %s token: %v", p.sourceProvider, err)
		e.sendProgress(progress, skipMappingUpdate(step, total, "no usable token for "+p.sourceProvider))
		return nil
	}
	targetToken, err := e.tokens.AccessToken(ctx, userAccountID, p.targetProvider)
	if err != nil {
		result.mappingSkips++
		result.warnf("no usable %s token: %v", p.targetProvider, err)
		e.sendProgress(progress, skipMappingUpdate(step, total, "no usable token for "+p.targetProvider))
		return nil
	}

	e.sendProgress(progress, fetchSourceUpdate(step, total, p.sourceProvider, p.sourcePlaylistID))

	sourcePlaylist, err := findPlaylist(ctx, source, sourceToken, p.sourcePlaylistID)
	if err != nil {
		return err
	}
	if sourcePlaylist == nil {
		result.mappingSkips++
		result.warnf("source playlist %q not found on %s", p.sourcePlaylistID, p.sourceProvider)
		e.sendProgress(progress, skipMappingUpdate(step, total, "source playlist not found"))
		return nil
	}

	tracks, err := source.FetchPlaylistTracks(ctx, sourceToken, sourcePlaylist.ID)
	if err != nil {
		return err
	}
	result.imported += len(tracks)

	unique := dedupeTracks(tracks)

	targetName := p.targetPlaylistID
	if targetName == "" {
		targetName = sourcePlaylist.Name
	}
	e.sendProgress(progress, createTargetUpdate(step, total, p.targetProvider, targetName))

	targetID := ""
	if p.targetPlaylistID != "" {
		targetPlaylist, err := findPlaylist(ctx, target, targetToken, p.targetPlaylistID)
		if err != nil {
			return err
		}
		if targetPlaylist != nil {
			targetID = targetPlaylist.ID
		}
	}
	if targetID == "" {
		targetID, err = target.CreateOrUpdatePlaylist(ctx, targetToken, targetName, sourcePlaylist.Description, sourcePlaylist.Public)
		if err != nil {
			return err
		}
	}

	existing, err := target.FetchPlaylistTracks(ctx, targetToken, targetID)
	if err != nil {
		return err
	}

	missing := missingTracks(unique, existing)
	result.exported += len(missing)
	if len(missing) == 0 {
		return nil
	}

	e.sendProgress(progress, exportTracksUpdate(step, total, len(missing), p.targetProvider))
	return target.AddTracksToPlaylist(ctx, targetToken, targetID, missing)
}

// syncLikes mirrors liked tracks between the providers the profile maps.
func (e *Executor) syncLikes(ctx context.Context, userAccountID string, profile *models.SyncProfile, result *syncResult, progress chan<- ProgressUpdate) error {
	if profile.LikesBehavior == models.LikesDisabled {
		return nil
	}

	type likesPair struct{ source, target string }
	seen := map[likesPair]struct{}{}
	var pairs []likesPair
	add := func(source, target string) {
		p := likesPair{source, target}
		if _, ok := seen[p]; ok || source == target {
			return
		}
		seen[p] = struct{}{}
		pairs = append(pairs, p)
	}
	for _, mapping := range profile.PlaylistMappings {
		add(mapping.SourceProvider, mapping.TargetProvider)
		if profile.LikesBehavior == models.LikesTwoWay {
			add(mapping.TargetProvider, mapping.SourceProvider)
		}
	}

	for _, p := range pairs {
		if err := e.syncLikesPair(ctx, userAccountID, p.source, p.target, result, progress); err != nil {
			if retry.IsTransient(err) || ctx.Err() != nil {
				return err
			}
			result.warnf("likes %s -> %s: %v", p.source, p.target, err)
			e.logger.Warn("skipping likes pair after permanent failure",
				"user", userAccountID, "source", p.source, "target", p.target, "err", err)
		}
	}
	return nil
}

// syncLikesPair pushes the source provider's liked tracks the target is
// missing. Unknown providers and unusable tokens warn and bail without error.
func (e *Executor) syncLikesPair(ctx context.Context, userAccountID, sourceName, targetName string, result *syncResult, progress chan<- ProgressUpdate) error {
	source, ok := e.providers[sourceName]
	if !ok {
		result.warnf("likes: unsupported provider %q", sourceName)
		return nil
	}
	target, ok := e.providers[targetName]
	if !ok {
		result.warnf("likes: unsupported provider %q", targetName)
		return nil
	}

	sourceToken, err := e.tokens.AccessToken(ctx, userAccountID, sourceName)
	if err != nil {
		result.warnf("likes: no usable %s token: %v", sourceName, err)
		return nil
	}
	targetToken, err := e.tokens.AccessToken(ctx, userAccountID, targetName)
	if err != nil {
		result.warnf("likes: no usable %s token: %v", targetName, err)
		return nil
	}

	liked, err := source.FetchLikedTracks(ctx, sourceToken)
	if err != nil {
		return err
	}
	existing, err := target.FetchLikedTracks(ctx, targetToken)
	if err != nil {
		return err
	}

	result.imported += len(liked)
	missing := missingTracks(dedupeTracks(liked), existing)
	result.exported += len(missing)
	if len(missing) == 0 {
		return nil
	}

	e.sendProgress(progress, syncLikesUpdate(sourceName, targetName, len(missing)))
	return target.LikeTracks(ctx, targetToken, missing)
}

// findPlaylist resolves an identifier that may be a provider id or a
// playlist name. Returns nil when nothing matches.
func findPlaylist(ctx context.Context, provider providers.Provider, token, idOrName string) (*models.NormalizedPlaylist, error) {
	playlists, err := provider.FetchPlaylists(ctx, token)
	if err != nil {
		return nil, err
	}
	for i := range playlists {
		if playlists[i].ID == idOrName {
			return &playlists[i], nil
		}
	}
	for i := range playlists {
		if strings.EqualFold(playlists[i].Name, idOrName) {
			return &playlists[i], nil
		}
	}
	return nil, nil
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *Executor) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// trackKeys returns the identity keys of a track: lowercased ISRC when
// present, always the normalized title/artist key.
func trackKeys(track models.NormalizedTrack) (isrc, key string) {
	return strings.ToLower(strings.TrimSpace(track.ISRC)), matching.Key(track.Title, track.PrimaryArtist())
}

// dedupeTracks drops tracks that repeat an earlier ISRC or normalized key.
func dedupeTracks(tracks []models.NormalizedTrack) []models.NormalizedTrack {
	isrcs := map[string]struct{}{}
	keys := map[string]struct{}{}
	out := make([]models.NormalizedTrack, 0, len(tracks))
	for _, track := range tracks {
		isrc, key := trackKeys(track)
		if isrc != "" {
			if _, ok := isrcs[isrc]; ok {
				continue
			}
		}
		if _, ok := keys[key]; ok {
			continue
		}
		if isrc != "" {
			isrcs[isrc] = struct{}{}
		}
		keys[key] = struct{}{}
		out = append(out, track)
	}
	return out
}

// missingTracks returns the source tracks absent from existing, matched by
// ISRC first and normalized key second.
func missingTracks(source, existing []models.NormalizedTrack) []models.NormalizedTrack {
	isrcs := map[string]struct{}{}
	keys := map[string]struct{}{}
	for _, track := range existing {
		isrc, key := trackKeys(track)
		if isrc != "" {
			isrcs[isrc] = struct{}{}
		}
		keys[key] = struct{}{}
	}

	var missing []models.NormalizedTrack
	for _, track := range source {
		isrc, key := trackKeys(track)
		if isrc != "" {
			if _, ok := isrcs[isrc]; ok {
				continue
			}
		}
		if _, ok := keys[key]; ok {
			continue
		}
		missing = append(missing, track)
	}
	return missing
}
