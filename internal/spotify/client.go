package spotify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultAccountsURL = "https://accounts.spotify.com"
	defaultAPIURL      = "https://api.spotify.com/v1"
	scopes             = "user-read-private user-read-email user-top-read streaming user-read-playback-state user-modify-playback-state"
)

type Client struct {
	clientID     string
	clientSecret string
	redirectURI  string
	accountsURL  string
	apiURL       string
	httpClient   *http.Client
}

type Option func(*Client)

// WithBaseURLs points the client at different accounts and API hosts.
func WithBaseURLs(accountsURL, apiURL string) Option {
	return func(c *Client) {
		c.accountsURL = strings.TrimRight(accountsURL, "/")
		c.apiURL = strings.TrimRight(apiURL, "/")
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// ExpiresAt is the absolute expiry of the access token as seen from now.
func (tr *TokenResponse) ExpiresAt(now time.Time) time.Time {
	return now.Add(time.Duration(tr.ExpiresIn) * time.Second).UTC()
}

type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	URI        string   `json:"uri"`
	PreviewURL string   `json:"preview_url"`
	Artists    []Artist `json:"artists"`
	Duration   int      `json:"duration_ms"`
	Album      Album    `json:"album"`
}

func (t Track) ArtistNames() []string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return names
}

// CoverURL returns the largest album image, which Spotify lists first.
func (t Track) CoverURL() string {
	if len(t.Album.Images) == 0 {
		return ""
	}
	return t.Album.Images[0].URL
}

type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Album struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Images []Image `json:"images"`
}

type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type TopTracksResponse struct {
	Items []Track `json:"items"`
}

type Profile struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Email       string  `json:"email"`
	Images      []Image `json:"images"`
}

// StatusError is a non-success answer from the Spotify API.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("spotify: %s request failed with status %d", e.Op, e.StatusCode)
}

func NewClient(clientID, clientSecret, redirectURI string, opts ...Option) *Client {
	c := &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		accountsURL:  defaultAccountsURL,
		apiURL:       defaultAPIURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) GetAuthURL(state string) string {
	params := url.Values{}
	params.Add("client_id", c.clientID)
	params.Add("response_type", "code")
	params.Add("redirect_uri", c.redirectURI)
	params.Add("scope", scopes)
	params.Add("state", state)

	return c.accountsURL + "/authorize?" + params.Encode()
}

func (c *Client) ExchangeToken(ctx context.Context, code string) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", c.redirectURI)

	return c.doTokenRequest(ctx, data)
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	return c.doTokenRequest(ctx, data)
}

func (c *Client) doTokenRequest(ctx context.Context, data url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.accountsURL+"/api/token", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}

	auth := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Add("Authorization", "Basic "+auth)
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	var token TokenResponse
	if err := c.do(req, "token", http.StatusOK, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// GetTopTracks lists the user's most played tracks for a Spotify time range
// (short_term, medium_term or long_term), most played first.
func (c *Client) GetTopTracks(ctx context.Context, accessToken string, timeRange string, limit int) ([]Track, error) {
	params := url.Values{}
	params.Add("time_range", timeRange)
	params.Add("limit", fmt.Sprintf("%d", limit))

	req, err := c.apiRequest(ctx, http.MethodGet, "/me/top/tracks?"+params.Encode(), accessToken, nil)
	if err != nil {
		return nil, err
	}

	var topTracksResp TopTracksResponse
	if err := c.do(req, "top tracks", http.StatusOK, &topTracksResp); err != nil {
		return nil, err
	}
	return topTracksResp.Items, nil
}

func (c *Client) PlayTrack(ctx context.Context, accessToken, deviceID, trackURI string) error {
	body, err := json.Marshal(map[string]interface{}{"uris": []string{trackURI}})
	if err != nil {
		return err
	}

	req, err := c.apiRequest(ctx, http.MethodPut, "/me/player/play"+deviceQuery(deviceID), accessToken, body)
	if err != nil {
		return err
	}
	return c.do(req, "play track", http.StatusNoContent, nil)
}

func (c *Client) Pause(ctx context.Context, accessToken, deviceID string) error {
	req, err := c.apiRequest(ctx, http.MethodPut, "/me/player/pause"+deviceQuery(deviceID), accessToken, nil)
	if err != nil {
		return err
	}
	return c.do(req, "pause", http.StatusNoContent, nil)
}

func (c *Client) GetCurrentUser(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := c.apiRequest(ctx, http.MethodGet, "/me", accessToken, nil)
	if err != nil {
		return nil, err
	}

	var profile Profile
	if err := c.do(req, "get user", http.StatusOK, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *Client) apiRequest(ctx context.Context, method, path, accessToken string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, r)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Authorization", "Bearer "+accessToken)
	if body != nil {
		req.Header.Add("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request, op string, wantStatus int, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("spotify: %s request: %w", op, err)
	}
	defer resp.Body.Close()

	// Playback endpoints answer 200 or 204 depending on the device.
	ok := resp.StatusCode == wantStatus ||
		(wantStatus == http.StatusNoContent && resp.StatusCode == http.StatusOK) ||
		(wantStatus == http.StatusNoContent && resp.StatusCode == http.StatusAccepted)
	if !ok {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(msg)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("spotify: decode %s response: %w", op, err)
	}
	return nil
}

func deviceQuery(deviceID string) string {
	if deviceID == "" {
		return ""
	}
	return "?device_id=" + url.QueryEscape(deviceID)
}
