package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/CarlesMG6/guessify-sub000/pkg/models"
	"github.com/CarlesMG6/guessify-sub000/pkg/redis"
)

type mockTokenStore struct {
	mock.Mock
}

func (m *mockTokenStore) StoreTokens(ctx context.Context, userID string, token *redis.TokenInfo) error {
	args := m.Called(ctx, userID, token)
	return args.Error(0)
}

func (m *mockTokenStore) GetTokens(ctx context.Context, userID string) (*redis.TokenInfo, error) {
	args := m.Called(ctx, userID)
	info, _ := args.Get(0).(*redis.TokenInfo)
	return info, args.Error(1)
}

func (m *mockTokenStore) RefreshToken(ctx context.Context, userID string, newAccessToken string, newExpiresAt time.Time) error {
	args := m.Called(ctx, userID, newAccessToken, newExpiresAt)
	return args.Error(0)
}

func (m *mockTokenStore) DeleteToken(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type fakeSpotify struct {
	*httptest.Server
	played  []string
	devices []string
	paused  int
}

func newFakeSpotify(t *testing.T) *fakeSpotify {
	t.Helper()
	f := &fakeSpotify{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("grant_type") == "refresh_token" && r.Form.Get("refresh_token") == "refresh-1" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "fresh", "expires_in": 3600})
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	})
	mux.HandleFunc("/v1/me/top/tracks", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" && r.Header.Get("Authorization") != "Bearer valid" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "short_term", r.URL.Query().Get("time_range"))
		_, _ = w.Write([]byte(`{"items":[
			{"id":"t1","name":"One","uri":"spotify:track:t1","preview_url":"https://p/1",
			 "artists":[{"name":"A"},{"name":"B"}],"album":{"images":[{"url":"https://img/big"},{"url":"https://img/small"}]}},
			{"id":"t2","name":"Two","uri":"spotify:track:t2","artists":[{"name":"C"}],"album":{"images":[]}}
		]}`))
	})
	mux.HandleFunc("/v1/me/player/play", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			URIs []string `json:"uris"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.played = append(f.played, body.URIs...)
		f.devices = append(f.devices, r.URL.Query().Get("device_id"))
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/v1/me/player/pause", func(w http.ResponseWriter, r *http.Request) {
		f.paused++
		w.WriteHeader(http.StatusNotFound)
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeSpotify) client() *Client {
	return NewClient("id", "secret", "http://localhost/callback", WithBaseURLs(f.URL, f.URL+"/v1"))
}

func TestTopTracksSource_RefreshesExpiredToken(t *testing.T) {
	srv := newFakeSpotify(t)
	store := &mockTokenStore{}
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	store.On("GetTokens", mock.Anything, "alice").
		Return(&redis.TokenInfo{AccessToken: "stale", RefreshToken: "refresh-1", ExpiresAt: now.Add(-time.Minute)}, nil)
	store.On("RefreshToken", mock.Anything, "alice", "fresh", now.Add(time.Hour)).Return(nil)

	tokens := NewTokens(srv.client(), store, clockwork.NewFakeClockAt(now))

	tracks, err := NewTopTracksSource(srv.client(), tokens).TopTracks(context.Background(), "alice", models.TermShort, 20)
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	assert.Equal(t, "t1", tracks[0].TrackID)
	assert.Equal(t, []string{"A", "B"}, tracks[0].Artists)
	assert.Equal(t, "https://img/big", tracks[0].CoverURL)
	assert.Equal(t, "spotify:track:t1", tracks[0].URI)
	assert.Empty(t, tracks[1].CoverURL)
	store.AssertExpectations(t)
}

func TestTopTracksSource_MissingToken(t *testing.T) {
	srv := newFakeSpotify(t)
	store := &mockTokenStore{}
	store.On("GetTokens", mock.Anything, "guest").Return(nil, redis.ErrTokenNotFound)

	_, err := NewTopTracksSource(srv.client(), NewTokens(srv.client(), store, clockwork.NewFakeClock())).
		TopTracks(context.Background(), "guest", models.TermShort, 20)
	assert.ErrorIs(t, err, redis.ErrTokenNotFound)
}

func TestPlayer_StartAndStop(t *testing.T) {
	srv := newFakeSpotify(t)
	store := &mockTokenStore{}
	clock := clockwork.NewFakeClock()
	store.On("GetTokens", mock.Anything, "host").
		Return(&redis.TokenInfo{AccessToken: "valid", ExpiresAt: clock.Now().Add(time.Hour)}, nil)

	player := NewPlayer(srv.client(), NewTokens(srv.client(), store, clock), "host", "device-9")
	require.NoError(t, player.StartPlayback(context.Background(), models.Track{TrackID: "t7"}))
	assert.Equal(t, []string{"spotify:track:t7"}, srv.played)
	assert.Equal(t, []string{"device-9"}, srv.devices)

	err := player.StopPlayback(context.Background())
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, 1, srv.paused)
}

func TestClient_GetAuthURL(t *testing.T) {
	u := NewClient("cid", "secret", "http://localhost/cb").GetAuthURL("xyz")
	assert.Contains(t, u, "https://accounts.spotify.com/authorize?")
	assert.Contains(t, u, "client_id=cid")
	assert.Contains(t, u, "state=xyz")
	assert.Contains(t, u, "user-top-read")
}
