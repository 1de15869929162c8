package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blenvi/blenvi/internal/catalog"
	"github.com/blenvi/blenvi/internal/domain"
	"github.com/blenvi/blenvi/internal/repository"
	"github.com/blenvi/blenvi/internal/service/auth"
	"github.com/blenvi/blenvi/internal/service/discussion"
	"github.com/blenvi/blenvi/internal/service/integration"
	"github.com/blenvi/blenvi/internal/service/overview"
	"github.com/blenvi/blenvi/internal/service/session"
	"github.com/blenvi/blenvi/internal/ws"
	"github.com/blenvi/blenvi/pkg/config"
	"github.com/blenvi/blenvi/pkg/crypto"
)

type memoryStore struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	byMail   map[string]*domain.User
	profiles map[string]domain.ProfileRecord
	configs  map[string]*domain.IntegrationConfig
	messages []*domain.DiscussionMessage
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:    map[string]*domain.User{},
		byMail:   map[string]*domain.User{},
		profiles: map[string]domain.ProfileRecord{},
		configs:  map[string]*domain.IntegrationConfig{},
	}
}

func (m *memoryStore) CreateUser(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byMail[u.Email]; ok {
		return repository.ErrConflict
	}
	m.users[u.ID] = u
	m.byMail[u.Email] = u
	return nil
}

func (m *memoryStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byMail[email]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memoryStore) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memoryStore) UpdatePassword(_ context.Context, id string, hash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memoryStore) GetProfile(_ context.Context, userID string) (*domain.ProfileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.profiles[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

func (m *memoryStore) InsertProfile(_ context.Context, rec domain.ProfileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[rec.UserID]; ok {
		return repository.ErrConflict
	}
	m.profiles[rec.UserID] = rec
	return nil
}

func (m *memoryStore) UpsertProfile(_ context.Context, rec domain.ProfileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[rec.UserID] = rec
	return nil
}

func (m *memoryStore) UpsertIntegrationConfig(_ context.Context, cfg *domain.IntegrationConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *cfg
	m.configs[cfg.TeamID+"|"+cfg.ProjectID+"|"+cfg.Slug] = &cp
	return nil
}

func (m *memoryStore) GetIntegrationConfig(_ context.Context, teamID, projectID, slug string) (*domain.IntegrationConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[teamID+"|"+projectID+"|"+slug]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *cfg
	return &cp, nil
}

func (m *memoryStore) AppendMessage(_ context.Context, msg *domain.DiscussionMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *memoryStore) GetMessage(_ context.Context, id string) (*domain.DiscussionMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ID == id {
			return msg, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryStore) ListMessages(_ context.Context, teamID, projectID string, limit int) ([]domain.DiscussionMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.DiscussionMessage{}
	for _, msg := range m.messages {
		if msg.TeamID == teamID && msg.ProjectID == projectID {
			out = append(out, *msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memoryStore) AddReaction(_ context.Context, id, emoji string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ID == id {
			if msg.Reactions == nil {
				msg.Reactions = map[string]int{}
			}
			msg.Reactions[emoji]++
			out := make(map[string]int, len(msg.Reactions))
			for k, v := range msg.Reactions {
				out[k] = v
			}
			return out, nil
		}
	}
	return nil, repository.ErrNotFound
}

type testEnv struct {
	router *Router
	store  *memoryStore
	hub    *ws.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithLimiter(t, nil)
}

func newTestEnvWithLimiter(t *testing.T, limiter RateLimiter) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	defs, err := integration.DefaultDefinitions()
	if err != nil {
		t.Fatalf("definitions: %v", err)
	}
	sealer, err := crypto.NewSealer("router-test")
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	store := newMemoryStore()
	hub := ws.NewHub()
	cfg := config.APIConfig{
		JWTSecret:        "router-secret",
		AccessTokenTTL:   time.Minute,
		RefreshTokenTTL:  time.Hour,
		PasswordResetTTL: time.Minute,
		PasswordResetURL: "https://app.example.com/auth/update-password",
	}
	integrations := integration.New(defs, store, sealer, hub, logger)
	router := NewRouter(Dependencies{
		Logger:       logger,
		Auth:         auth.New(store, nil, logger, cfg),
		Catalog:      cat,
		Sessions:     session.NewRegistry(cat, store, session.NewHubNotifier(hub, logger), logger),
		Integrations: integrations,
		Discussion:   discussion.New(store, hub, logger),
		Overview:     overview.New(cat, defs, integrations, logger),
		Hub:          hub,
		Limiter:      limiter,
		DBHealth:     func(context.Context) error { return nil },
	})
	t.Cleanup(func() {
		router.Close()
		hub.Close()
	})
	return &testEnv{router: router, store: store, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func (e *testEnv) signup(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"email":      "Jane.Doe@Example.com",
		"password":   "Tr4ck!ngLab",
		"first_name": "Jane",
		"last_name":  "Doe",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[struct {
		Tokens tokenView `json:"tokens"`
	}](t, rec)
	if resp.Tokens.AccessToken == "" {
		t.Fatalf("missing access token")
	}
	return resp.Tokens.AccessToken
}

func TestSignupLoginAndMe(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t)

	rec := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "jane.doe@example.com",
		"password": "Tr4ck!ngLab",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", rec.Code, rec.Body.String())
	}
	login := decodeBody[struct {
		Tokens tokenView `json:"tokens"`
	}](t, rec)

	rec = env.do(t, http.MethodGet, "/auth/me", login.Tokens.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "jane.doe@example.com") {
		t.Fatalf("expected normalized email in %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "jane.doe@example.com",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/auth/me", "/workspace/teams", "/account/profile", "/dashboard/1/1"} {
		if rec := env.do(t, http.MethodGet, path, "", nil); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rec.Code)
		}
	}
	if rec := env.do(t, http.MethodGet, "/auth/me", "not-a-token", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
}

func TestWorkspaceSelectionFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t)

	rec := env.do(t, http.MethodGet, "/workspace/teams", token, nil)
	teams := decodeBody[[]teamView](t, rec)
	if len(teams) != 3 || teams[1].Name != "Monsters Inc" || teams[1].Role != domain.RoleAdmin {
		t.Fatalf("unexpected teams %+v", teams)
	}

	rec = env.do(t, http.MethodPost, "/workspace/selection/team", token, map[string]string{"team_id": "2"})
	sel := decodeBody[selectionView](t, rec)
	if sel.Team == nil || sel.Team.ID != "2" || sel.Project != nil {
		t.Fatalf("unexpected selection after team pick %+v", sel)
	}

	rec = env.do(t, http.MethodPost, "/workspace/selection/project", token, map[string]string{"project_id": "3"})
	sel = decodeBody[selectionView](t, rec)
	if sel.Project == nil || sel.Project.ID != "3" {
		t.Fatalf("expected project 3 selected, got %+v", sel)
	}

	rec = env.do(t, http.MethodPost, "/workspace/selection/project", token, map[string]string{"project_id": "1"})
	sel = decodeBody[selectionView](t, rec)
	if sel.Team == nil || sel.Team.ID != "2" || sel.Project != nil {
		t.Fatalf("project from another team must clear the project, got %+v", sel)
	}

	rec = env.do(t, http.MethodPost, "/workspace/selection/team", token, map[string]string{"team_id": "99"})
	sel = decodeBody[selectionView](t, rec)
	if sel.Team != nil || sel.TeamID != "" {
		t.Fatalf("unknown team must clear the selection, got %+v", sel)
	}
}

func TestDashboardSyncsSelection(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t)

	rec := env.do(t, http.MethodGet, "/dashboard/1/1", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[struct {
		Page      map[string]string `json:"page"`
		Synced    bool              `json:"synced"`
		Selection selectionView     `json:"selection"`
		Overview  *overview.Overview `json:"overview"`
	}](t, rec)
	if resp.Page["kind"] != "overview" || !resp.Synced {
		t.Fatalf("unexpected page %+v synced=%v", resp.Page, resp.Synced)
	}
	if resp.Selection.TeamID != "1" || resp.Selection.ProjectID != "1" {
		t.Fatalf("selection not synced: %+v", resp.Selection)
	}
	if resp.Overview == nil || len(resp.Overview.Integrations) != 2 {
		t.Fatalf("expected overview with two integrations, got %+v", resp.Overview)
	}

	rec = env.do(t, http.MethodGet, "/dashboard/1/1", token, nil)
	again := decodeBody[struct {
		Synced bool `json:"synced"`
	}](t, rec)
	if again.Synced {
		t.Fatalf("same route must not report a change")
	}

	env.do(t, http.MethodPost, "/workspace/selection/team", token, map[string]string{"team_id": "2"})
	rec = env.do(t, http.MethodGet, "/dashboard/1/1", token, nil)
	restored := decodeBody[struct {
		Selection selectionView `json:"selection"`
	}](t, rec)
	if restored.Selection.TeamID != "1" || restored.Selection.ProjectID != "1" {
		t.Fatalf("route must restore the selection, got %+v", restored.Selection)
	}

	rec = env.do(t, http.MethodGet, "/dashboard/1/1/integration/stripe", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("integration page status %d", rec.Code)
	}
	for _, path := range []string{"/dashboard/1/3", "/dashboard/1/1/unknown", "/dashboard/1/1/integration/nope"} {
		if rec := env.do(t, http.MethodGet, path, token, nil); rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestProfileLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t)

	rec := env.do(t, http.MethodGet, "/account/profile", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("profile status %d: %s", rec.Code, rec.Body.String())
	}
	snap := decodeBody[map[string]any](t, rec)
	profile := snap["profile"].(map[string]any)
	if profile["username"] != "jane.doe" || snap["loaded"] != true {
		t.Fatalf("expected default profile, got %v", snap)
	}
	if snap["display_avatar"] != "/placeholder.svg" {
		t.Fatalf("expected placeholder avatar, got %v", snap["display_avatar"])
	}

	env.do(t, http.MethodPost, "/account/profile/edit", token, nil)
	rec = env.do(t, http.MethodPatch, "/account/profile", token, map[string]string{
		"firstname": "Jane",
		"username":  "Jane_Doe!",
	})
	snap = decodeBody[map[string]any](t, rec)
	profile = snap["profile"].(map[string]any)
	if profile["username"] != "janedoe" || profile["firstname"] != "Jane" {
		t.Fatalf("unexpected live profile %v", profile)
	}

	rec = env.do(t, http.MethodPatch, "/account/profile", token, map[string]string{"nickname": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/account/profile/save", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("save status %d: %s", rec.Code, rec.Body.String())
	}
	snap = decodeBody[map[string]any](t, rec)
	if snap["editing"] != false {
		t.Fatalf("save must end editing")
	}
	stored, err := env.store.GetProfile(context.Background(), snap["user_id"].(string))
	if err != nil || stored.Profile.FirstName != "Jane" {
		t.Fatalf("profile not persisted: %+v %v", stored, err)
	}

	rec = env.do(t, http.MethodPost, "/account/avatar", token, map[string]string{"data_uri": "not-an-image"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid avatar, got %d", rec.Code)
	}
}

func TestIntegrationConfigRoutes(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t)

	rec := env.do(t, http.MethodGet, "/integrations", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/integrations/nope", token, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown definition, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/teams/1/projects/3/integrations/stripe", token, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for project outside team, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/teams/1/projects/1/integrations/stripe/test", token, nil)
	result := decodeBody[integration.TestResult](t, rec)
	if result.Status != "not_configured" {
		t.Fatalf("expected not_configured, got %+v", result)
	}
}

func TestDiscussionRoutes(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t)

	rec := env.do(t, http.MethodPost, "/teams/1/projects/1/discussion", token, map[string]string{"body": "**hello**"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post status %d: %s", rec.Code, rec.Body.String())
	}
	msg := decodeBody[domain.DiscussionMessage](t, rec)
	if msg.AuthorName != "Jane Doe" || !strings.Contains(msg.HTML, "<strong>hello</strong>") {
		t.Fatalf("unexpected message %+v", msg)
	}

	rec = env.do(t, http.MethodPost, "/teams/1/projects/1/discussion/"+msg.ID+"/reactions", token, map[string]string{"emoji": "👍"})
	if rec.Code != http.StatusOK {
		t.Fatalf("react status %d: %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPost, "/teams/1/projects/2/discussion/"+msg.ID+"/reactions", token, map[string]string{"emoji": "👍"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for message from another project, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/teams/1/projects/1/discussion", token, nil)
	msgs := decodeBody[[]domain.DiscussionMessage](t, rec)
	if len(msgs) != 1 || msgs[0].Reactions["👍"] != 1 {
		t.Fatalf("unexpected listing %+v", msgs)
	}

	if rec := env.do(t, http.MethodPost, "/teams/1/projects/1/discussion", token, map[string]string{"body": "  "}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d", rec.Code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t)
	var last *httptest.ResponseRecorder
	for i := 0; i <= policyLogin.limit; i++ {
		last = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "a@b.c", "password": "x"})
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after %d attempts, got %d", policyLogin.limit+1, last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status %d", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["status"] != "ok" {
		t.Fatalf("unexpected health payload %v", body)
	}
}
