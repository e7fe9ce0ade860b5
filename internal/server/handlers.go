package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"tunesync/internal/auth"
	"tunesync/internal/models"
	"tunesync/internal/scheduler"
	"tunesync/internal/shared"
	"tunesync/internal/store"
	"tunesync/internal/tasks"
)

const userCookie = "tunesync_user"

// API implements the JSON endpoints of the sync service.
type API struct {
	store     store.Store
	auth      *auth.Manager
	executor  *tasks.Executor
	scheduler *scheduler.Scheduler
	logger    *log.Logger
}

// NewAPI wires the HTTP surface to its collaborators.
func NewAPI(s store.Store, authManager *auth.Manager, executor *tasks.Executor, sched *scheduler.Scheduler, logger *log.Logger) *API {
	return &API{
		store:     s,
		auth:      authManager,
		executor:  executor,
		scheduler: sched,
		logger:    logger,
	}
}

// Register implements [Handler].
func (a *API) Register(router Router) {
	router.Handle("GET", "/health", http.HandlerFunc(a.handleHealth))

	router.Handle("GET", "/auth/connections", http.HandlerFunc(a.handleConnections))
	router.Handle("GET", "/auth/{provider}/start", http.HandlerFunc(a.handleAuthStart))
	router.Handle("GET", "/auth/{provider}/callback", http.HandlerFunc(a.handleAuthCallback))

	router.Handle("GET", "/sync/profile", http.HandlerFunc(a.handleGetProfile))
	router.Handle("PUT", "/sync/profile", http.HandlerFunc(a.handlePutProfile))
	router.Handle("PUT", "/sync/schedule", http.HandlerFunc(a.handlePutSchedule))
	router.Handle("POST", "/sync/run-now", http.HandlerFunc(a.handleRunNow))
	router.Handle("POST", "/sync/run", http.HandlerFunc(a.handleRunNow))
	router.Handle("GET", "/sync/runs", http.HandlerFunc(a.handleRuns))
	router.Handle("GET", "/sync/runs/latest", http.HandlerFunc(a.handleLatestRun))
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// resolveUser identifies the caller and provisions a user account on first
// contact. Preference order: userId query param, X-User-Id header, cookie.
// Unknown callers get a generated id written back as a cookie.
func (a *API) resolveUser(w http.ResponseWriter, r *http.Request) (*models.UserAccount, error) {
	externalID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if externalID == "" {
		externalID = strings.TrimSpace(r.Header.Get("X-User-Id"))
	}
	if externalID != "" {
		a.writeUserCookie(w, r, externalID)
	} else if cookie, err := r.Cookie(userCookie); err == nil && cookie.Value != "" {
		externalID = cookie.Value
	} else {
		externalID = "user-" + strings.ReplaceAll(uuid.NewString(), "-", "")
		a.writeUserCookie(w, r, externalID)
	}

	return a.store.GetOrCreateUser(r.Context(), externalID)
}

func (a *API) writeUserCookie(w http.ResponseWriter, r *http.Request, externalID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     userCookie,
		Value:    externalID,
		Path:     "/",
		MaxAge:   int((30 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
}

func (a *API) handleAuthStart(w http.ResponseWriter, r *http.Request) {
	user, err := a.resolveUser(w, r)
	if err != nil {
		a.serverError(w, err)
		return
	}

	authURL, err := a.auth.StartAuthorization(r.Context(), user.ID, r.PathValue("provider"))
	if err != nil {
		if errors.Is(err, shared.ErrUnsupportedProvider) || errors.Is(err, shared.ErrMissingCredentials) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.serverError(w, err)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

func (a *API) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	user, err := a.resolveUser(w, r)
	if err != nil {
		a.serverError(w, err)
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: code and state are required", shared.ErrInvalidInput))
		return
	}

	status, err := a.auth.HandleCallback(r.Context(), user.ID, r.PathValue("provider"), code, state)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrInvalidState), errors.Is(err, shared.ErrUnsupportedProvider):
			writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, shared.ErrExchangeFailed):
			writeError(w, http.StatusBadGateway, err)
		default:
			a.serverError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, connectionResponse(status))
}

func (a *API) handleConnections(w http.ResponseWriter, r *http.Request) {
	user, err := a.resolveUser(w, r)
	if err != nil {
		a.serverError(w, err)
		return
	}

	statuses, err := a.auth.Connections(r.Context(), user.ID)
	if err != nil {
		a.serverError(w, err)
		return
	}

	response := map[string]any{
		auth.ProviderSpotify:    map[string]any{"connected": false},
		auth.ProviderSoundCloud: map[string]any{"connected": false},
	}
	for _, status := range statuses {
		response[status.Provider] = connectionResponse(status)
	}
	writeJSON(w, http.StatusOK, response)
}

type playlistMappingPayload struct {
	SourceProvider   string `json:"sourceProvider"`
	SourcePlaylistID string `json:"sourcePlaylistId"`
	TargetProvider   string `json:"targetProvider"`
	TargetPlaylistID string `json:"targetPlaylistId"`
}

type profilePayload struct {
	Direction        string                   `json:"direction"`
	LikesBehavior    string                   `json:"likesBehavior"`
	PlaylistMappings []playlistMappingPayload `json:"playlistMappings"`
}

func (a *API) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := a.resolveUser(w, r)
	if err != nil {
		a.serverError(w, err)
		return
	}

	profile, err := a.store.GetOrCreateProfile(r.Context(), user.ID)
	if err != nil {
		a.serverError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse(profile))
}

func (a *API) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	user, err := a.resolveUser(w, r)
	if err != nil {
		a.serverError(w, err)
		return
	}

	var payload profilePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
		return
	}

	direction, err := parseDirection(payload.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	likes, err := parseLikesBehavior(payload.LikesBehavior)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	profile, err := a.store.GetOrCreateProfile(r.Context(), user.ID)
	if err != nil {
		a.serverError(w, err)
		return
	}

	profile.Direction = direction
	profile.LikesBehavior = likes
	profile.PlaylistMappings = make([]models.PlaylistMapping, 0, len(payload.PlaylistMappings))
	for _, mapping := range payload.PlaylistMappings {
		profile.PlaylistMappings = append(profile.PlaylistMappings, models.PlaylistMapping{
			SyncProfileID:    profile.ID,
			SourceProvider:   mapping.SourceProvider,
			SourcePlaylistID: mapping.SourcePlaylistID,
			TargetProvider:   mapping.TargetProvider,
			TargetPlaylistID: mapping.TargetPlaylistID,
		})
	}

	if err := a.store.UpdateProfile(r.Context(), profile); err != nil {
		if errors.Is(err, shared.ErrInvalidMapping) || strings.Contains(err.Error(), "mapping requires") {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.serverError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse(profile))
}

type schedulePayload struct {
	CronExpression string `json:"cronExpression"`
	TimeZoneID     string `json:"timeZoneId"`
}

func (a *API) handlePutSchedule(w http.ResponseWriter, r *http.Request) {
	user, err := a.resolveUser(w, r)
	if err != nil {
		a.serverError(w, err)
		return
	}

	var payload schedulePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
		return
	}

	profile, err := a.store.GetOrCreateProfile(r.Context(), user.ID)
	if err != nil {
		a.serverError(w, err)
		return
	}

	if strings.TrimSpace(payload.CronExpression) == "" {
		profile.ScheduleEnabled = false
		profile.ScheduleCron = ""
		profile.ScheduleTimeZone = "UTC"
		if err := a.store.UpdateProfile(r.Context(), profile); err != nil {
			a.serverError(w, err)
			return
		}
		a.scheduler.Remove(user.ID)
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}

	normalized, err := scheduler.ValidateCron(payload.CronExpression)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	timeZone := strings.TrimSpace(payload.TimeZoneID)
	if timeZone == "" {
		timeZone = "UTC"
	}
	if _, err := time.LoadLocation(timeZone); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: unknown timezone %q", shared.ErrInvalidSchedule, timeZone))
		return
	}

	profile.ScheduleEnabled = true
	profile.ScheduleCron = normalized
	profile.ScheduleTimeZone = timeZone
	if err := a.store.UpdateProfile(r.Context(), profile); err != nil {
		a.serverError(w, err)
		return
	}

	if err := a.scheduler.RegisterOrUpdate(user.ID, normalized, timeZone); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":                  true,
		"cronExpression":           payload.CronExpression,
		"normalizedCronExpression": normalized,
		"timeZoneId":               timeZone,
	})
}

func (a *API) handleRunNow(w http.ResponseWriter, r *http.Request) {
	user, err := a.resolveUser(w, r)
	if err != nil {
		a.serverError(w, err)
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey != "" {
		if job, err := a.store.GetJobByKey(r.Context(), user.ID, idempotencyKey); err == nil {
			run, runErr := a.store.LatestRunForJob(r.Context(), job.ID)
			if runErr != nil && !errors.Is(runErr, shared.ErrNotFound) {
				a.serverError(w, runErr)
				return
			}
			writeJSON(w, http.StatusOK, jobResponse(job, run))
			return
		} else if !errors.Is(err, shared.ErrNotFound) {
			a.serverError(w, err)
			return
		}
	}

	job, run, err := a.executor.ExecuteForUser(r.Context(), user.ID, idempotencyKey, nil)
	if err != nil {
		a.serverError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, jobResponse(job, run))
}

func (a *API) handleRuns(w http.ResponseWriter, r *http.Request) {
	user, err := a.resolveUser(w, r)
	if err != nil {
		a.serverError(w, err)
		return
	}

	runs, err := a.store.ListRunsByUser(r.Context(), user.ID, 0)
	if err != nil {
		a.serverError(w, err)
		return
	}

	response := make([]map[string]any, 0, len(runs))
	for _, run := range runs {
		response = append(response, runResponse(run))
	}
	writeJSON(w, http.StatusOK, response)
}

func (a *API) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	user, err := a.resolveUser(w, r)
	if err != nil {
		a.serverError(w, err)
		return
	}

	run, err := a.store.LatestRunByUser(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		a.serverError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, runResponse(run))
}

func (a *API) serverError(w http.ResponseWriter, err error) {
	a.logger.Error("request failed", "err", err)
	writeError(w, http.StatusInternalServerError, err)
}

func parseDirection(value string) (models.SyncDirection, error) {
	switch models.SyncDirection(value) {
	case models.DirectionOneWay, models.DirectionTwoWay:
		return models.SyncDirection(value), nil
	default:
		return "", fmt.Errorf("%w: direction %q", shared.ErrInvalidInput, value)
	}
}

func parseLikesBehavior(value string) (models.LikesBehavior, error) {
	switch models.LikesBehavior(value) {
	case models.LikesDisabled, models.LikesSourceToTarget, models.LikesTwoWay:
		return models.LikesBehavior(value), nil
	default:
		return "", fmt.Errorf("%w: likes behavior %q", shared.ErrInvalidInput, value)
	}
}

func connectionResponse(status *auth.ConnectionStatus) map[string]any {
	return map[string]any{
		"connected":         status.Connected,
		"expiresAt":         status.ExpiresAt,
		"lastRefreshResult": status.LastRefreshResult,
	}
}

func profileResponse(profile *models.SyncProfile) map[string]any {
	mappings := make([]map[string]string, 0, len(profile.PlaylistMappings))
	for _, mapping := range profile.PlaylistMappings {
		mappings = append(mappings, map[string]string{
			"sourceProvider":   mapping.SourceProvider,
			"sourcePlaylistId": mapping.SourcePlaylistID,
			"targetProvider":   mapping.TargetProvider,
			"targetPlaylistId": mapping.TargetPlaylistID,
		})
	}

	return map[string]any{
		"id":            profile.ID,
		"direction":     string(profile.Direction),
		"likesBehavior": string(profile.LikesBehavior),
		"updatedAt":     profile.UpdatedAt,
		"schedule": map[string]any{
			"enabled":        profile.ScheduleEnabled,
			"cronExpression": profile.ScheduleCron,
			"timeZoneId":     profile.ScheduleTimeZone,
		},
		"playlistMappings": mappings,
	}
}

func jobResponse(job *models.SyncJob, run *models.SyncRun) map[string]any {
	response := map[string]any{
		"id":             job.ID,
		"idempotencyKey": job.IdempotencyKey,
		"status":         string(job.Status),
		"startedAt":      job.StartedAt,
		"endedAt":        job.EndedAt,
		"importedCount":  job.ImportedCount,
		"exportedCount":  job.ExportedCount,
		"skippedCount":   job.SkippedCount,
		"error":          job.Error,
	}
	if run != nil {
		response["runId"] = run.ID
		response["runStatus"] = string(run.Status)
	}
	return response
}

func runResponse(run *store.RunView) map[string]any {
	return map[string]any{
		"id":             run.ID,
		"syncJobId":      run.SyncJobID,
		"status":         string(run.Status),
		"startedAt":      run.StartedAt,
		"endedAt":        run.EndedAt,
		"importedCount":  run.ImportedCount,
		"exportedCount":  run.ExportedCount,
		"skippedCount":   run.SkippedCount,
		"error":          run.Error,
		"idempotencyKey": run.IdempotencyKey,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
