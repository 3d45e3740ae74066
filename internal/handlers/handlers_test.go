package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"streamflux/internal/favorites"
	"streamflux/internal/models"
	"streamflux/internal/observer"
	"streamflux/internal/services"
	"streamflux/internal/session"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type memLocal struct {
	mu      sync.Mutex
	records []models.FavoriteRecord
}

func (m *memLocal) Favorites() ([]models.FavoriteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.CloneRecords(m.records), nil
}

func (m *memLocal) SetFavorites(records []models.FavoriteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = models.CloneRecords(records)
	return nil
}

type memRemote struct {
	mu      sync.Mutex
	data    map[string][]models.FavoriteRecord
	failing bool
}

func (m *memRemote) FetchAll(ctx context.Context, userID string) ([]models.FavoriteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.CloneRecords(m.data[userID]), nil
}

func (m *memRemote) Add(ctx context.Context, userID string, record models.FavoriteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("connection reset")
	}
	m.data[userID] = append(m.data[userID], record)
	return nil
}

func (m *memRemote) Remove(ctx context.Context, userID string, key models.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("connection reset")
	}
	var kept []models.FavoriteRecord
	for _, r := range m.data[userID] {
		if r.Key() != key {
			kept = append(kept, r)
		}
	}
	m.data[userID] = kept
	return nil
}

type stubMovies struct{}

func (stubMovies) GetDetails(ctx context.Context, id int) (*models.MovieDetails, error) {
	if id == 404 {
		return nil, services.ErrNotFound
	}
	title := "Inception"
	return &models.MovieDetails{ID: &id, Title: &title}, nil
}

type stubAnime struct{}

func (stubAnime) AnimeFavorite(ctx context.Context, id int) (models.FavoriteRecord, error) {
	if id == 404 {
		return models.FavoriteRecord{}, services.ErrNotFound
	}
	pop := 1000.0
	return models.FavoriteRecord{ID: id, Category: models.CategoryAnime, Title: "Frieren", PosterPath: "f.jpg",
		Popularity: &pop, Genres: []models.Genre{{ID: 2, Name: "Adventure"}}}, nil
}

type memProfiles struct{ profile *models.UserProfile }

func (m *memProfiles) Profile() (*models.UserProfile, error) { return m.profile, nil }
func (m *memProfiles) SetProfile(p models.UserProfile) error {
	m.profile = &p
	return nil
}

type testServer struct {
	*httptest.Server
	remote *memRemote
	store  *favorites.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	sc := session.New(logger)
	remote := &memRemote{data: make(map[string][]models.FavoriteRecord)}
	store := favorites.NewStore(&memLocal{}, remote, sc, logger)
	registry := observer.NewRegistry(context.Background(), store, nil, sc.Bus, observer.WithObserverOptions(observer.WithLogger(logger)))

	h := &Handler{
		Store:     store,
		Observers: registry,
		Movies:    stubMovies{},
		Anime:     stubAnime{},
		Profiles:  services.NewProfileService(&memProfiles{}, logger),
		Bus:       sc.Bus,
		Health: map[string]HealthCheck{
			"local": func(ctx context.Context) error { return nil },
		},
		Logger: logger,
	}

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(func() {
		srv.Close()
		registry.Close()
		store.Close()
	})
	return &testServer{Server: srv, remote: remote, store: store}
}

func (s *testServer) do(t *testing.T, method, path, user string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if user != "" {
		req.Header.Set(userIDHeader, user)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func movieRecord(id int) models.FavoriteRecord {
	return models.FavoriteRecord{ID: id, Category: models.CategoryMovie, Title: "Movie", PosterPath: "/m.jpg"}
}

func TestToggleAndReadLocal(t *testing.T) {
	srv := newTestServer(t)

	resp, body := srv.do(t, http.MethodPost, "/favorites/toggle", "", movieRecord(550))
	if resp.StatusCode != http.StatusOK || body["favorite"] != true || body["persisted"] != true {
		t.Fatalf("toggle = %d %v", resp.StatusCode, body)
	}
	if resp.Header.Get(requestIDHeader) == "" {
		t.Error("response has no request id")
	}

	_, body = srv.do(t, http.MethodGet, "/favorites/movie/550", "", nil)
	if body["favorite"] != true {
		t.Errorf("GET favorite = %v", body)
	}
	_, body = srv.do(t, http.MethodGet, "/favorites/anime/550", "", nil)
	if body["favorite"] != false {
		t.Errorf("GET anime favorite = %v, category must matter", body)
	}

	_, body = srv.do(t, http.MethodGet, "/favorites", "", nil)
	items, _ := body["items"].([]any)
	if body["state"] != string(observer.StateLoaded) || len(items) != 1 {
		t.Errorf("list = %v", body)
	}
	counts, _ := body["counts"].(map[string]any)
	if counts["movies"] != float64(1) || counts["anime"] != float64(0) {
		t.Errorf("counts = %v", counts)
	}
}

func TestToggleRejectsInvalidPayload(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := srv.do(t, http.MethodPost, "/favorites/toggle", "", models.FavoriteRecord{ID: 1, Category: models.CategoryMovie})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	resp, _ = srv.do(t, http.MethodGet, "/favorites/tv/1", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown category status = %d, want 400", resp.StatusCode)
	}

	resp, _ = srv.do(t, http.MethodGet, "/favorites?genre=abc", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad genre status = %d, want 400", resp.StatusCode)
	}
}

func TestRemoteToggleWaitsForPersistence(t *testing.T) {
	srv := newTestServer(t)

	resp, body := srv.do(t, http.MethodPost, "/favorites/anime/52991/toggle?wait=true", "user-1", nil)
	if resp.StatusCode != http.StatusOK || body["favorite"] != true || body["persisted"] != true {
		t.Fatalf("toggle = %d %v", resp.StatusCode, body)
	}

	srv.remote.mu.Lock()
	stored := len(srv.remote.data["user-1"])
	srv.remote.mu.Unlock()
	if stored != 1 {
		t.Errorf("remote holds %d records, want 1", stored)
	}

	_, body = srv.do(t, http.MethodGet, "/favorites/anime/52991", "", nil)
	if body["favorite"] != false {
		t.Error("remote favorite visible to the local backend")
	}

	_, body = srv.do(t, http.MethodGet, "/favorites?refresh=true", "user-1", nil)
	if items, _ := body["items"].([]any); len(items) != 1 {
		t.Errorf("remote list = %v", body)
	}
}

func TestRemoteToggleReportsFailedWrite(t *testing.T) {
	srv := newTestServer(t)
	srv.remote.failing = true

	resp, body := srv.do(t, http.MethodPost, "/favorites/toggle?wait=true", "user-2", movieRecord(1))
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["persisted"] != false || body["warning"] == nil {
		t.Errorf("toggle = %v, want an unpersisted warning", body)
	}
}

func TestToggleAnimeNotFound(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := srv.do(t, http.MethodPost, "/favorites/anime/404/toggle", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGetMovie(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		path   string
		status int
	}{
		{"/movies/27205", http.StatusOK},
		{"/movies/404", http.StatusNotFound},
		{"/movies/abc", http.StatusBadRequest},
		{"/movies/-1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp, _ := srv.do(t, http.MethodGet, tt.path, "", nil)
		if resp.StatusCode != tt.status {
			t.Errorf("GET %s = %d, want %d", tt.path, resp.StatusCode, tt.status)
		}
	}
}

func TestProfileCountryConflict(t *testing.T) {
	srv := newTestServer(t)

	_, body := srv.do(t, http.MethodGet, "/profile", "", nil)
	if body["member_since"] == nil {
		t.Errorf("profile = %v", body)
	}

	resp, _ := srv.do(t, http.MethodPut, "/profile", "", map[string]any{"name": "Ada", "country": "NG"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first PUT status = %d", resp.StatusCode)
	}

	resp, _ = srv.do(t, http.MethodPut, "/profile", "", map[string]any{"name": "Ada", "country": "GH"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second PUT status = %d, want 409", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, body := srv.do(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("healthz = %d %v", resp.StatusCode, body)
	}
}

func TestChangesStreamsToggleEvents(t *testing.T) {
	srv := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	// the subscription is registered after the upgrade, so retry the toggle
	// until a frame arrives
	deadline := time.Now().Add(2 * time.Second)
	frames := make(chan string, 1)
	go func() {
		_, msg, err := conn.ReadMessage()
		if err == nil {
			frames <- string(msg)
		}
	}()

	for id := 1; time.Now().Before(deadline); id++ {
		srv.do(t, http.MethodPost, "/favorites/toggle", "", movieRecord(id))
		select {
		case msg := <-frames:
			if msg != "favorites-changed" {
				t.Errorf("frame = %q", msg)
			}
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
	t.Fatal("no favorites-changed frame received")
}

func TestChangesOnlyStreamsOwnToggles(t *testing.T) {
	srv := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{userIDHeader: {"bob"}})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	frames := make(chan string, 16)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- string(msg)
		}
	}()

	// wait until bob's subscription is live
	subscribed := false
	deadline := time.Now().Add(2 * time.Second)
	for id := 1; !subscribed && time.Now().Before(deadline); id++ {
		srv.do(t, http.MethodPost, "/favorites/toggle", "bob", movieRecord(id))
		select {
		case <-frames:
			subscribed = true
		case <-time.After(50 * time.Millisecond):
		}
	}
	if !subscribed {
		t.Fatal("no frame received for bob's own toggle")
	}
	// drain frames of toggles that raced the subscription
	for drained := false; !drained; {
		select {
		case <-frames:
		case <-time.After(50 * time.Millisecond):
			drained = true
		}
	}

	srv.do(t, http.MethodPost, "/favorites/toggle", "alice", movieRecord(500))
	srv.do(t, http.MethodPost, "/favorites/toggle", "", movieRecord(501))
	select {
	case msg := <-frames:
		t.Fatalf("bob received %q for another identity's toggle", msg)
	case <-time.After(100 * time.Millisecond):
	}
}
