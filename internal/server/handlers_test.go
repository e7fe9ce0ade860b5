package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tunesync/internal/auth"
	"tunesync/internal/models"
	"tunesync/internal/providers"
	"tunesync/internal/scheduler"
	"tunesync/internal/shared"
	"tunesync/internal/tasks"
	tu "tunesync/internal/testing"
)

// apiFixture runs the full router over an in-memory store and mock providers.
type apiFixture struct {
	router  *BasicRouter
	spotify *tu.MockProvider
	sound   *tu.MockProvider
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	logger := shared.NewLogger(io.Discard)
	s := tu.MustOpenStore(t)

	protector, err := auth.NewTokenProtector("handler-test-secret")
	if err != nil {
		t.Fatalf("NewTokenProtector failed: %v", err)
	}
	authManager := auth.NewManager(s, protector, shared.CredentialsConfig{
		Spotify: shared.ProviderCredentials{ClientID: "cid", CallbackURL: "http://localhost/cb"},
	}, logger)

	spotify := &tu.MockProvider{ProviderName: "spotify", PlaylistTracks: map[string][]models.NormalizedTrack{}}
	sound := &tu.MockProvider{ProviderName: "soundcloud", PlaylistTracks: map[string][]models.NormalizedTrack{}}
	tokens := &tu.MockTokenSource{Tokens: map[string]string{"spotify": "t", "soundcloud": "t"}}

	executor := tasks.NewExecutor(s, map[string]providers.Provider{
		"spotify":    spotify,
		"soundcloud": sound,
	}, tokens, logger)
	sched := scheduler.NewScheduler(s, executor, logger)

	router := NewBasicRouter()
	NewAPI(s, authManager, executor, sched, logger).Register(router)

	return &apiFixture{router: router, spotify: spotify, sound: sound}
}

// do performs a request as the fixed test user.
func (f *apiFixture) do(t *testing.T, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-User-Id", "handler-test-user")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("response %q is not JSON: %v", rec.Body.String(), err)
	}
	return payload
}

func TestHandleHealth(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, "GET", "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if payload := decodeJSON(t, rec); payload["status"] != "ok" {
		t.Errorf("payload = %+v, want status ok", payload)
	}
}

func TestUserIdentity(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("anonymous caller gets a cookie", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/health", nil)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)

		// Health does not resolve users; profile does.
		req = httptest.NewRequest("GET", "/sync/profile", nil)
		rec = httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)

		cookies := rec.Result().Cookies()
		var found *http.Cookie
		for _, c := range cookies {
			if c.Name == "tunesync_user" {
				found = c
			}
		}
		if found == nil {
			t.Fatal("expected a tunesync_user cookie for anonymous callers")
		}
		if !strings.HasPrefix(found.Value, "user-") {
			t.Errorf("cookie value = %q, want generated user- id", found.Value)
		}
		if !found.HttpOnly {
			t.Error("cookie should be HttpOnly")
		}
	})

	t.Run("header identity wins over cookie", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/sync/profile", nil)
		req.Header.Set("X-User-Id", "header-user")
		req.AddCookie(&http.Cookie{Name: "tunesync_user", Value: "cookie-user"})
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		// The header identity is echoed back as a refreshed cookie.
		for _, c := range rec.Result().Cookies() {
			if c.Name == "tunesync_user" && c.Value != "header-user" {
				t.Errorf("cookie = %q, want header-user", c.Value)
			}
		}
	})
}

func TestProfileEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("get provisions defaults", func(t *testing.T) {
		rec := f.do(t, "GET", "/sync/profile", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		payload := decodeJSON(t, rec)
		if payload["direction"] != "one_way" || payload["likesBehavior"] != "disabled" {
			t.Errorf("payload = %+v, want defaults", payload)
		}
	})

	t.Run("put updates profile", func(t *testing.T) {
		body := `{
			"direction": "two_way",
			"likesBehavior": "source_to_target",
			"playlistMappings": [
				{"sourceProvider": "spotify", "sourcePlaylistId": "p1", "targetProvider": "soundcloud"}
			]
		}`
		rec := f.do(t, "PUT", "/sync/profile", body, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s, want 200", rec.Code, rec.Body.String())
		}
		payload := decodeJSON(t, rec)
		if payload["direction"] != "two_way" {
			t.Errorf("direction = %v, want two_way", payload["direction"])
		}
		mappings, _ := payload["playlistMappings"].([]any)
		if len(mappings) != 1 {
			t.Errorf("mappings = %+v, want 1", payload["playlistMappings"])
		}
	})

	t.Run("invalid direction rejected", func(t *testing.T) {
		rec := f.do(t, "PUT", "/sync/profile", `{"direction":"sideways","likesBehavior":"disabled"}`, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("mapping without source rejected", func(t *testing.T) {
		body := `{
			"direction": "one_way",
			"likesBehavior": "disabled",
			"playlistMappings": [{"sourceProvider": "spotify", "targetProvider": "soundcloud"}]
		}`
		rec := f.do(t, "PUT", "/sync/profile", body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, body %s, want 400", rec.Code, rec.Body.String())
		}
	})

	t.Run("malformed json rejected", func(t *testing.T) {
		rec := f.do(t, "PUT", "/sync/profile", `{"direction":`, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestScheduleEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("valid schedule accepted", func(t *testing.T) {
		rec := f.do(t, "PUT", "/sync/schedule", `{"cronExpression":"0 * * * *","timeZoneId":"America/New_York"}`, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s, want 200", rec.Code, rec.Body.String())
		}
		payload := decodeJSON(t, rec)
		if payload["enabled"] != true || payload["timeZoneId"] != "America/New_York" {
			t.Errorf("payload = %+v, want enabled schedule", payload)
		}
	})

	t.Run("too frequent rejected", func(t *testing.T) {
		rec := f.do(t, "PUT", "/sync/schedule", `{"cronExpression":"* * * * *"}`, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("unknown timezone rejected", func(t *testing.T) {
		rec := f.do(t, "PUT", "/sync/schedule", `{"cronExpression":"0 * * * *","timeZoneId":"Mars/Olympus"}`, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("empty expression disables", func(t *testing.T) {
		rec := f.do(t, "PUT", "/sync/schedule", `{"cronExpression":""}`, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if payload := decodeJSON(t, rec); payload["enabled"] != false {
			t.Errorf("payload = %+v, want disabled", payload)
		}
	})
}

func TestRunNowEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.spotify.Playlists = []models.NormalizedPlaylist{{ID: "sp1", Name: "List"}}
	f.spotify.PlaylistTracks["sp1"] = []models.NormalizedTrack{
		{Title: "Song", Artists: []string{"Artist"}},
	}
	f.do(t, "PUT", "/sync/profile", `{
		"direction": "one_way",
		"likesBehavior": "disabled",
		"playlistMappings": [{"sourceProvider":"spotify","sourcePlaylistId":"sp1","targetProvider":"soundcloud"}]
	}`, nil)

	t.Run("new execution returns 202", func(t *testing.T) {
		rec := f.do(t, "POST", "/sync/run-now", "", map[string]string{"Idempotency-Key": "run-1"})
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, body %s, want 202", rec.Code, rec.Body.String())
		}
		payload := decodeJSON(t, rec)
		if payload["status"] != "completed" {
			t.Errorf("status = %v, want completed", payload["status"])
		}
		if payload["idempotencyKey"] != "run-1" {
			t.Errorf("idempotencyKey = %v, want run-1", payload["idempotencyKey"])
		}
	})

	t.Run("replay returns 200 with the same job", func(t *testing.T) {
		first := decodeJSON(t, f.do(t, "POST", "/sync/run-now", "", map[string]string{"Idempotency-Key": "run-2"}))

		rec := f.do(t, "POST", "/sync/run-now", "", map[string]string{"Idempotency-Key": "run-2"})
		if rec.Code != http.StatusOK {
			t.Fatalf("replay status = %d, want 200", rec.Code)
		}
		second := decodeJSON(t, rec)
		if second["id"] != first["id"] {
			t.Errorf("replay job id = %v, want %v", second["id"], first["id"])
		}
	})

	t.Run("run alias route", func(t *testing.T) {
		rec := f.do(t, "POST", "/sync/run", "", nil)
		if rec.Code != http.StatusAccepted {
			t.Errorf("status = %d, want 202", rec.Code)
		}
	})
}

func TestRunsEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("latest 404 before any run", func(t *testing.T) {
		rec := f.do(t, "GET", "/sync/runs/latest", "", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("runs list after execution", func(t *testing.T) {
		f.do(t, "POST", "/sync/run-now", "", map[string]string{"Idempotency-Key": "runs-1"})

		rec := f.do(t, "GET", "/sync/runs", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var runs []map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
			t.Fatalf("response is not a JSON array: %v", err)
		}
		if len(runs) != 1 {
			t.Fatalf("len(runs) = %d, want 1", len(runs))
		}
		if runs[0]["idempotencyKey"] != "runs-1" {
			t.Errorf("run = %+v, want idempotencyKey runs-1", runs[0])
		}

		latest := f.do(t, "GET", "/sync/runs/latest", "", nil)
		if latest.Code != http.StatusOK {
			t.Errorf("latest status = %d, want 200", latest.Code)
		}
	})
}

func TestAuthEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("start redirects to provider", func(t *testing.T) {
		rec := f.do(t, "GET", "/auth/spotify/start", "", nil)
		if rec.Code != http.StatusFound {
			t.Fatalf("status = %d, body %s, want 302", rec.Code, rec.Body.String())
		}
		location := rec.Header().Get("Location")
		if !strings.Contains(location, "accounts.spotify.com") || !strings.Contains(location, "code_challenge=") {
			t.Errorf("Location = %q, want spotify authorize url with challenge", location)
		}
	})

	t.Run("start with unknown provider", func(t *testing.T) {
		rec := f.do(t, "GET", "/auth/tidal/start", "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("start without credentials", func(t *testing.T) {
		rec := f.do(t, "GET", "/auth/soundcloud/start", "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("callback without code", func(t *testing.T) {
		rec := f.do(t, "GET", "/auth/spotify/callback?state=abc", "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("callback with stale state", func(t *testing.T) {
		rec := f.do(t, "GET", "/auth/spotify/callback?code=c&state=stale", "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("connections include defaults", func(t *testing.T) {
		rec := f.do(t, "GET", "/auth/connections", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		payload := decodeJSON(t, rec)
		spotify, _ := payload["spotify"].(map[string]any)
		sound, _ := payload["soundcloud"].(map[string]any)
		if spotify == nil || sound == nil {
			t.Fatalf("payload = %+v, want entries for both providers", payload)
		}
		if spotify["connected"] != false || sound["connected"] != false {
			t.Errorf("payload = %+v, want disconnected defaults", payload)
		}
	})

	t.Run("wrong method answers 405", func(t *testing.T) {
		rec := f.do(t, "POST", "/auth/connections", "", nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", rec.Code)
		}
	})
}
