package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/frontiertower/guest-portal/internal/auth"
	"github.com/frontiertower/guest-portal/internal/controller"
	"github.com/frontiertower/guest-portal/internal/db"
	"github.com/frontiertower/guest-portal/internal/guest"
	"github.com/frontiertower/guest-portal/internal/settings"
)

const testAdminPassword = "letmein"

type testEnv struct {
	router *Router
	store  settings.Store
	guests *guest.Manager
}

func newTestEnv(t *testing.T, stored map[string]string, defaults map[string]string) *testEnv {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "portal.db"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store := database.Settings()
	for k, v := range stored {
		if err := store.Set(context.Background(), k, v); err != nil {
			t.Fatal(err)
		}
	}
	return buildTestEnv(t, store, database, defaults)
}

// buildTestEnv wires a router over the given settings store and guest repository.
func buildTestEnv(t *testing.T, store settings.Store, repo guest.Repository, defaults map[string]string) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)

	guests := guest.NewManager(repo, time.Hour, logger)
	t.Cleanup(guests.Stop)

	kp, err := auth.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	resolver := settings.NewResolver(store, defaults)
	handler := NewHandler(HandlerConfig{
		Authorizer:    controller.NewBridge(resolver, controller.Config{Timeout: 2 * time.Second, Logger: logger}),
		Guests:        guests,
		Store:         store,
		Resolver:      resolver,
		JWT:           auth.NewJWTService(kp, "guest-portal-test"),
		AdminPassword: testAdminPassword,
		Logger:        logger,
	})

	return &testEnv{router: NewRouter(handler), store: store, guests: guests}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/admin/login", jsonBody{"password": testAdminPassword}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", w.Code, w.Body)
	}
	var resp struct {
		Token string `json:"token"`
	}
	decode(t, w, &resp)
	return resp.Token
}

type jsonBody = map[string]any

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

type envelopeJSON struct {
	Response    int    `json:"response"`
	Description string `json:"description"`
	Message     string `json:"message"`
	Payload     *struct {
		MACAddress  string    `json:"macAddress"`
		MinutesLeft int       `json:"minutesLeft"`
		SecondsLeft int       `json:"secondsLeft"`
		ExpireOn    time.Time `json:"expireOn"`
		LastLogin   time.Time `json:"lastLogin"`
		Valid       bool      `json:"valid"`
	} `json:"payload"`
}

func registration(acceptTou any) jsonBody {
	return jsonBody{
		"acceptTou":             acceptTou,
		"accessPointMacAddress": "11:22:33:44:55:66",
		"macAddress":            "aa:bb:cc:dd:ee:ff",
		"email":                 "guest@example.com",
		"browser":               "Safari",
		"operatingSystem":       "iOS",
	}
}

func TestAuthorizeGuest_MockMode(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodPost, "/api/authorize-guest", registration("true"), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}

	var resp envelopeJSON
	decode(t, w, &resp)
	if resp.Response != 200 || resp.Description != "200 OK (Mock Mode)" {
		t.Errorf("envelope = %+v", resp)
	}
	p := resp.Payload
	if p == nil || !p.Valid || p.MinutesLeft != 1440 || p.SecondsLeft != 59 || p.MACAddress != "aa:bb:cc:dd:ee:ff" {
		t.Fatalf("payload = %+v", p)
	}
	if d := p.ExpireOn.Sub(p.LastLogin); d != 24*time.Hour {
		t.Errorf("expireOn - lastLogin = %v, want 24h", d)
	}

	stats, err := env.guests.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 1 || stats.Active != 1 {
		t.Errorf("guest not recorded, stats = %+v", stats)
	}
}

// failingRepository rejects every new guest record.
type failingRepository struct{}

func (failingRepository) CreateGuest(context.Context, *db.Guest) error {
	return errors.New("database is locked")
}

func (failingRepository) ListGuests(context.Context, string) ([]*db.Guest, error) {
	return nil, nil
}

func (failingRepository) ExpireGuests(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (failingRepository) GetStats(context.Context) (int, int, error) {
	return 0, 0, nil
}

func TestAuthorizeGuest_RecordFailureIgnored(t *testing.T) {
	env := buildTestEnv(t, settings.NewMemoryStore(nil), failingRepository{}, nil)

	w := env.do(t, http.MethodPost, "/api/authorize-guest", registration("true"), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}

	var resp envelopeJSON
	decode(t, w, &resp)
	if resp.Response != 200 || resp.Description != "200 OK (Mock Mode)" {
		t.Errorf("envelope = %+v", resp)
	}
	if resp.Payload == nil || !resp.Payload.Valid {
		t.Errorf("payload = %+v", resp.Payload)
	}
}

func TestAuthorizeGuest_BadRequests(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	missingMAC := registration("true")
	delete(missingMAC, "macAddress")

	tests := []struct {
		name string
		body any
	}{
		{"terms not accepted", registration("false")},
		{"terms as boolean", registration(true)},
		{"missing mac", missingMAC},
		{"malformed json", "{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/authorize-guest", tt.body, "")
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d: %s", w.Code, w.Body)
			}
			var resp envelopeJSON
			decode(t, w, &resp)
			if resp.Response != 400 || resp.Description != "Bad Request" || resp.Message == "" || resp.Payload != nil {
				t.Errorf("envelope = %+v", resp)
			}
		})
	}

	if stats, _ := env.guests.Stats(context.Background()); stats.Total != 0 {
		t.Errorf("rejected requests must not be recorded, stats = %+v", stats)
	}
}

func newModernController(t *testing.T, clients string) *httptest.Server {
	t.Helper()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/sites/default/clients":
			_, _ = w.Write([]byte(clients))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/sites/default/clients/c1/actions":
			_, _ = w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAuthorizeGuest_ControllerOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		clients     string
		wantStatus  int
		wantDesc    string
		wantMessage string
	}{
		{
			name:       "authorized",
			clients:    `{"data":[{"id":"c1"}]}`,
			wantStatus: http.StatusOK,
			wantDesc:   "200 OK",
		},
		{
			name:        "client not connected",
			clients:     `{"data":[]}`,
			wantStatus:  http.StatusNotFound,
			wantDesc:    "Client not found",
			wantMessage: "Client not connected to network",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newModernController(t, tt.clients)
			env := newTestEnv(t, nil, map[string]string{
				settings.KeyControllerURL: srv.URL,
				settings.KeyAPIKey:        "k1",
			})

			w := env.do(t, http.MethodPost, "/api/authorize-guest", registration("true"), "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d: %s", w.Code, w.Body)
			}
			var resp envelopeJSON
			decode(t, w, &resp)
			if resp.Response != tt.wantStatus || resp.Description != tt.wantDesc || resp.Message != tt.wantMessage {
				t.Errorf("envelope = %+v", resp)
			}
		})
	}
}

func TestAuthorizeGuest_Misconfigured(t *testing.T) {
	env := newTestEnv(t, map[string]string{
		settings.KeyAPIType:       "legacy",
		settings.KeyControllerURL: "https://unifi.local",
		settings.KeyUsername:      "admin",
	}, nil)

	w := env.do(t, http.MethodPost, "/api/authorize-guest", registration("true"), "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	var resp envelopeJSON
	decode(t, w, &resp)
	if resp.Response != 500 || resp.Description != "Internal Server Error" || resp.Message == "" {
		t.Errorf("envelope = %+v", resp)
	}
}

func TestAdminLogin(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodPost, "/api/admin/login", jsonBody{"password": "wrong"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d", w.Code)
	}

	if token := env.login(t); token == "" {
		t.Error("empty token")
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	for _, path := range []string{"/api/admin/settings", "/api/admin/guests", "/api/admin/stats"} {
		if w := env.do(t, http.MethodGet, path, nil, ""); w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token = %d", path, w.Code)
		}
		if w := env.do(t, http.MethodGet, path, nil, "not-a-jwt"); w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s with bad token = %d", path, w.Code)
		}
	}
}

type settingsResponse struct {
	Settings []settingView `json:"settings"`
}

func (r settingsResponse) find(key string) settingView {
	for _, s := range r.Settings {
		if s.Key == key {
			return s
		}
	}
	return settingView{}
}

func TestAdminSettings(t *testing.T) {
	env := newTestEnv(t,
		map[string]string{settings.KeyAPIKey: "supersecretkey"},
		map[string]string{settings.KeyUsername: "env-admin"},
	)
	token := env.login(t)

	w := env.do(t, http.MethodGet, "/api/admin/settings", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	var resp settingsResponse
	decode(t, w, &resp)
	if len(resp.Settings) != len(settings.Known) {
		t.Errorf("got %d settings, want %d", len(resp.Settings), len(settings.Known))
	}
	if s := resp.find(settings.KeyAPIKey); s.Value != "****tkey" || s.Source != "store" || !s.Secret {
		t.Errorf("api key = %+v", s)
	}
	if s := resp.find(settings.KeyUsername); s.Value != "env-admin" || s.Source != "environment" {
		t.Errorf("username = %+v", s)
	}
	if s := resp.find(settings.KeyPassword); s.Source != "unset" {
		t.Errorf("password = %+v", s)
	}

	w = env.do(t, http.MethodPut, "/api/admin/settings", jsonBody{"admin_password": "x"}, token)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown key status = %d", w.Code)
	}
	w = env.do(t, http.MethodPut, "/api/admin/settings", jsonBody{settings.KeyAPIType: "omada"}, token)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad api type status = %d", w.Code)
	}

	w = env.do(t, http.MethodPut, "/api/admin/settings", jsonBody{
		settings.KeyAPIType: "modern",
		settings.KeySite:    "tower",
		settings.KeyAPIKey:  "",
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", w.Code, w.Body)
	}

	ctx := context.Background()
	if v, _, _ := env.store.Get(ctx, settings.KeySite); v != "tower" {
		t.Errorf("site = %q", v)
	}
	if _, ok, _ := env.store.Get(ctx, settings.KeyAPIKey); ok {
		t.Error("empty value should clear the stored api key")
	}
}

// recordingStore logs every write and fails on one key.
type recordingStore struct {
	settings.Store
	failKey string

	mu     sync.Mutex
	writes []string
}

func (s *recordingStore) Set(ctx context.Context, key, value string) error {
	if err := s.record(key); err != nil {
		return err
	}
	return s.Store.Set(ctx, key, value)
}

func (s *recordingStore) Delete(ctx context.Context, key string) error {
	if err := s.record(key); err != nil {
		return err
	}
	return s.Store.Delete(ctx, key)
}

func (s *recordingStore) record(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, key)
	if key == s.failKey {
		return errors.New("disk I/O error")
	}
	return nil
}

func TestAdminSettings_WrittenInKeyOrder(t *testing.T) {
	// Repeated so map iteration order cannot pass by luck.
	for i := 0; i < 5; i++ {
		store := &recordingStore{Store: settings.NewMemoryStore(nil), failKey: settings.KeyPassword}
		env := buildTestEnv(t, store, failingRepository{}, nil)
		token := env.login(t)

		w := env.do(t, http.MethodPut, "/api/admin/settings", jsonBody{
			settings.KeySite:     "tower",
			settings.KeyPassword: "secret",
			settings.KeyUsername: "admin",
			settings.KeyAPIType:  "legacy",
		}, token)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d: %s", w.Code, w.Body)
		}

		want := []string{settings.KeyAPIType, settings.KeyUsername, settings.KeyPassword}
		if !reflect.DeepEqual(store.writes, want) {
			t.Fatalf("writes = %v, want %v", store.writes, want)
		}
		if _, ok, _ := store.Get(context.Background(), settings.KeySite); ok {
			t.Error("site must not be written after the failing key")
		}
	}
}

func TestAdminGuestsAndStats(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	token := env.login(t)

	for _, mac := range []string{"aa:aa:aa:aa:aa:aa", "bb:bb:bb:bb:bb:bb"} {
		body := registration("true")
		body["macAddress"] = mac
		if w := env.do(t, http.MethodPost, "/api/authorize-guest", body, ""); w.Code != http.StatusOK {
			t.Fatalf("authorize %s = %d", mac, w.Code)
		}
	}

	w := env.do(t, http.MethodGet, "/api/admin/guests?status=active", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("guests status = %d: %s", w.Code, w.Body)
	}
	var list struct {
		Count  int              `json:"count"`
		Guests []map[string]any `json:"guests"`
	}
	decode(t, w, &list)
	if list.Count != 2 || list.Guests[0]["mode"] != "mock" || list.Guests[0]["email"] != "guest@example.com" {
		t.Errorf("guests = %+v", list)
	}

	if w := env.do(t, http.MethodGet, "/api/admin/guests?status=banned", nil, token); w.Code != http.StatusBadRequest {
		t.Errorf("bad status filter = %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/admin/stats", nil, token)
	var stats guest.Stats
	decode(t, w, &stats)
	if stats.Total != 2 || stats.Active != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestAdminControllerTest(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	token := env.login(t)

	w := env.do(t, http.MethodPost, "/api/admin/controller/test", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]any
	decode(t, w, &resp)
	if resp["ok"] != true || resp["mode"] != "mock" {
		t.Errorf("response = %v", resp)
	}

	_ = env.store.Set(context.Background(), settings.KeyControllerURL, "https://unifi.local")
	_ = env.store.Set(context.Background(), settings.KeyAPIType, "modern")

	w = env.do(t, http.MethodPost, "/api/admin/controller/test", nil, token)
	resp = nil
	decode(t, w, &resp)
	if resp["ok"] != false || resp["kind"] != string(controller.KindMisconfigured) {
		t.Errorf("response = %v", resp)
	}
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, http.MethodGet, "/health", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}
