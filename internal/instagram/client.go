// SPDX-License-Identifier: MPL-2.0

package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// defaultBaseURL is the Instagram web origin.
	defaultBaseURL = "https://www.instagram.com"

	// webAppID is the X-IG-App-ID value of the Instagram web client. The API
	// rejects requests without it.
	webAppID = "936619743392459"

	// defaultUserAgent mimics a desktop browser. The web API serves a login
	// wall to unknown agents.
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

	// csrfCookieName is the cookie carrying the CSRF token issued on the
	// first page load.
	csrfCookieName = "csrftoken"

	// maxJSONResponseBytes is the upper bound on JSON API response size (10 MB).
	// Prevents unbounded memory consumption from malformed responses.
	maxJSONResponseBytes = 10 << 20
)

var (
	// ErrLoginFailed is returned when Instagram rejects the credentials.
	ErrLoginFailed = errors.New("instagram login failed")

	// ErrUserNotFound is returned when a profile lookup matches no account.
	ErrUserNotFound = errors.New("instagram user not found")

	// ErrNoVideo is returned when a media has no downloadable video rendition.
	ErrNoVideo = errors.New("media has no video version")
)

type (
	// Client talks to the Instagram web API. It keeps session cookies in a
	// jar, so Login must be called before the feed endpoints.
	Client struct {
		httpClient *http.Client
		baseURL    string // API origin (default: "https://www.instagram.com", overridable for tests)
		userAgent  string
		username   string
		password   string
		userID     string // Numeric ID of the logged-in account, set by Login
	}

	// ClientOption configures a Client during construction.
	ClientOption func(*Client)
)

// WithHTTPClient sets a custom HTTP client. A cookie jar is attached when the
// client has none.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(ig *Client) {
		ig.httpClient = c
	}
}

// WithBaseURL overrides the Instagram API origin, primarily for test servers.
func WithBaseURL(base string) ClientOption {
	return func(ig *Client) {
		ig.baseURL = strings.TrimRight(base, "/")
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(ig *Client) {
		ig.userAgent = ua
	}
}

// NewClient creates a Client for the given account credentials.
func NewClient(username, password string, opts ...ClientOption) (*Client, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("instagram credentials are required")
	}

	c := &Client{
		baseURL:   defaultBaseURL,
		userAgent: defaultUserAgent,
		username:  username,
		password:  password,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if c.httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		c.httpClient.Jar = jar
	}

	return c, nil
}

// Login authenticates the session. It first loads the origin page to obtain
// a CSRF token, then posts the credentials to the ajax login endpoint.
// Returns ErrLoginFailed when the credentials are rejected.
func (c *Client) Login(ctx context.Context) error {
	token, err := c.fetchCSRFToken(ctx)
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}

	// The web client never sends the raw password; it wraps it in the
	// browser password envelope with a client-side timestamp.
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("enc_password", fmt.Sprintf("#PWD_INSTAGRAM_BROWSER:0:%d:%s", time.Now().Unix(), c.password))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/accounts/login/ajax/", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("logging in: creating request: %w", err)
	}
	c.setCommonHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-CSRFToken", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("logging in: executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("logging in: unexpected status %d: %w", resp.StatusCode, ErrLoginFailed)
	}

	var lr loginResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&lr); err != nil {
		return fmt.Errorf("logging in: decoding response: %w", err)
	}
	if !lr.Authenticated {
		return ErrLoginFailed
	}

	c.userID = lr.UserID
	return nil
}

// UserID resolves an account name to its numeric profile ID.
// Returns ErrUserNotFound when no such account exists.
func (c *Client) UserID(ctx context.Context, username string) (string, error) {
	profileURL := fmt.Sprintf("%s/api/v1/users/web_profile_info/?username=%s",
		c.baseURL, url.QueryEscape(username))

	resp, err := c.doRequest(ctx, profileURL)
	if err != nil {
		return "", fmt.Errorf("resolving user %s: %w", username, err)
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("resolving user %s: %w", username, ErrUserNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("resolving user %s: unexpected status %d", username, resp.StatusCode)
	}

	var pr profileResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&pr); err != nil {
		return "", fmt.Errorf("resolving user %s: decoding response: %w", username, err)
	}
	if pr.Data.User.ID == "" {
		return "", fmt.Errorf("resolving user %s: %w", username, ErrUserNotFound)
	}

	return pr.Data.User.ID, nil
}

// RecentMedias fetches the most recent posts of a profile, newest first.
// limit caps the number of returned items; values below one default to one.
func (c *Client) RecentMedias(ctx context.Context, userID string, limit int) ([]Media, error) {
	if limit < 1 {
		limit = 1
	}
	feedURL := fmt.Sprintf("%s/api/v1/feed/user/%s/?count=%d", c.baseURL, url.PathEscape(userID), limit)

	resp, err := c.doRequest(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("fetching feed of %s: %w", userID, err)
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching feed of %s: unexpected status %d", userID, resp.StatusCode)
	}

	var fr feedResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&fr); err != nil {
		return nil, fmt.Errorf("fetching feed of %s: decoding response: %w", userID, err)
	}

	medias := make([]Media, 0, len(fr.Items))
	for _, item := range fr.Items {
		medias = append(medias, toMedia(item))
	}
	if len(medias) > limit {
		medias = medias[:limit]
	}

	return medias, nil
}

// DownloadVideo streams the best rendition of a video post into dir as
// "<pk>.mp4" and returns the written path. Returns ErrNoVideo for media
// without a video rendition.
func (c *Client) DownloadVideo(ctx context.Context, media Media, dir string) (string, error) {
	best := media.BestVideo()
	if best == nil {
		return "", fmt.Errorf("downloading media %s: %w", media.PK, ErrNoVideo)
	}

	resp, err := c.doRequest(ctx, best.URL)
	if err != nil {
		return "", fmt.Errorf("downloading media %s from %s: %w", media.PK, redactURL(best.URL), err)
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading media %s from %s: unexpected status %d",
			media.PK, redactURL(best.URL), resp.StatusCode)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("downloading media %s: %w", media.PK, err)
	}

	path := filepath.Join(dir, media.PK+".mp4")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("downloading media %s: %w", media.PK, err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path) // partial file is useless
		return "", fmt.Errorf("downloading media %s: %w", media.PK, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("downloading media %s: %w", media.PK, err)
	}

	return path, nil
}

// doRequest executes an authenticated GET with the common web API headers.
func (c *Client) doRequest(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setCommonHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}

	return resp, nil
}

// setCommonHeaders applies the headers the web API expects on every call.
func (c *Client) setCommonHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-IG-App-ID", webAppID)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", c.baseURL+"/")
}

// fetchCSRFToken loads the origin page so the server issues the csrftoken
// cookie, then reads it back from the jar.
func (c *Client) fetchCSRFToken(ctx context.Context) (string, error) {
	resp, err := c.doRequest(ctx, c.baseURL+"/")
	if err != nil {
		return "", fmt.Errorf("fetching CSRF token: %w", err)
	}
	// Drain so the connection can be reused; the body content is irrelevant.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxJSONResponseBytes)) //nolint:errcheck // Best-effort drain.
	_ = resp.Body.Close()                                                       //nolint:errcheck // read-only response body

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("fetching CSRF token: %w", err)
	}
	for _, cookie := range c.httpClient.Jar.Cookies(u) {
		if cookie.Name == csrfCookieName {
			return cookie.Value, nil
		}
	}

	return "", fmt.Errorf("fetching CSRF token: no %s cookie in response", csrfCookieName)
}

// redactURL strips query parameters and fragments from a URL for safe
// inclusion in error messages. Video URLs carry signed tokens.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
