// Package ctfd is a client for the CTFd challenge platform: challenge and
// scoreboard reads plus flag submission, with a cached cookie+nonce session.
package ctfd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var noncePattern = regexp.MustCompile(`'csrfNonce': "(.+?)"`)

type Challenge struct {
	ID         int    `json:"id"`
	Type       string `json:"type"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	Solves     int    `json:"solves"`
	Value      int    `json:"value"`
	SolvedByMe bool   `json:"solved_by_me"`
}

type ScoreboardEntry struct {
	Pos        int    `json:"pos"`
	Name       string `json:"name"`
	Score      int    `json:"score"`
	AccountURL string `json:"account_url"`
}

type SubmissionResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// session is the cached authenticated state. CTFd sessions expire with the
// cookie; the nonce is tied to the session.
type session struct {
	cookie string
	nonce  string
	expiry time.Time
}

func (s session) valid() bool {
	return s.cookie != "" && s.nonce != "" && time.Now().Before(s.expiry)
}

// Client talks to one CTFd deployment. Safe for concurrent use; the session
// cache is refreshed at most once at a time.
type Client struct {
	BaseURL  string
	Email    string
	Password string
	// APIKey authorizes the scoreboard endpoint, which is served outside the
	// session-cookie auth.
	APIKey string

	HTTP *http.Client

	mu   sync.Mutex
	sess session
}

func NewClient(baseURL, email, password, apiKey string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Email:    email,
		Password: password,
		APIKey:   apiKey,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
			// Login issues the authed cookie on a redirect response; the
			// redirect itself must not be followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// GetChallenges lists all challenges visible to the authenticated account.
func (c *Client) GetChallenges(ctx context.Context) ([]Challenge, error) {
	sess, err := c.authedSession(ctx)
	if err != nil {
		return nil, err
	}

	var out struct {
		Success bool        `json:"success"`
		Data    []Challenge `json:"data"`
	}
	if err := c.getJSON(ctx, "/api/v1/challenges", sess.cookie, "", &out); err != nil {
		return nil, fmt.Errorf("fetch challenges: %w", err)
	}
	return out.Data, nil
}

// GetScoreboard returns the ranked scoreboard.
func (c *Client) GetScoreboard(ctx context.Context) ([]ScoreboardEntry, error) {
	var out struct {
		Success bool              `json:"success"`
		Data    []ScoreboardEntry `json:"data"`
	}
	if err := c.getJSON(ctx, "/api/v1/scoreboard", "", c.APIKey, &out); err != nil {
		return nil, fmt.Errorf("fetch scoreboard: %w", err)
	}
	return out.Data, nil
}

// SubmitFlag attempts one flag against one challenge. An incorrect flag is
// not an error; the outcome is in the result status/message.
func (c *Client) SubmitFlag(ctx context.Context, challengeID int, flag string) (SubmissionResult, error) {
	sess, err := c.authedSession(ctx)
	if err != nil {
		return SubmissionResult{}, err
	}

	body, _ := json.Marshal(map[string]any{
		"challenge_id": challengeID,
		"submission":   flag,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/v1/challenges/attempt", bytes.NewReader(body))
	if err != nil {
		return SubmissionResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Csrf-Token", sess.nonce)
	req.Header.Set("Cookie", sess.cookie)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return SubmissionResult{}, fmt.Errorf("submit flag: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Success bool             `json:"success"`
		Data    SubmissionResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return SubmissionResult{}, fmt.Errorf("decode submission response: %w", err)
	}
	return out.Data, nil
}

func (c *Client) getJSON(ctx context.Context, path, cookie, authz string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// authedSession returns the cached session, logging in again only when the
// cookie has expired.
func (c *Client) authedSession(ctx context.Context) (session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess.valid() {
		return c.sess, nil
	}

	sess, err := c.login(ctx)
	if err != nil {
		return session{}, fmt.Errorf("ctfd login: %w", err)
	}
	c.sess = sess
	log.WithField("expiry", sess.expiry).Debug("Refreshed CTFd session")
	return sess, nil
}

func (c *Client) login(ctx context.Context) (session, error) {
	// Anonymous login page carries the pre-auth cookie and form nonce.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/login", nil)
	if err != nil {
		return session{}, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return session{}, err
	}
	page, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return session{}, err
	}

	anonCookie, _, err := splitSetCookie(resp.Header)
	if err != nil {
		return session{}, err
	}
	formNonce, err := extractNonce(string(page))
	if err != nil {
		return session{}, err
	}

	// Credential POST; the authed cookie arrives on the redirect response.
	var form bytes.Buffer
	w := multipart.NewWriter(&form)
	_ = w.WriteField("name", c.Email)
	_ = w.WriteField("password", c.Password)
	_ = w.WriteField("_submit", "Submit")
	_ = w.WriteField("nonce", formNonce)
	_ = w.Close()

	req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/login", &form)
	if err != nil {
		return session{}, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Cookie", anonCookie)

	resp, err = c.HTTP.Do(req)
	if err != nil {
		return session{}, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	authedCookie, expiry, err := splitSetCookie(resp.Header)
	if err != nil {
		return session{}, err
	}

	// The session nonce differs from the login-form nonce; any authed page
	// carries it.
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/challenges", nil)
	if err != nil {
		return session{}, err
	}
	req.Header.Set("Cookie", authedCookie)

	resp, err = c.HTTP.Do(req)
	if err != nil {
		return session{}, err
	}
	authedPage, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return session{}, err
	}
	sessNonce, err := extractNonce(string(authedPage))
	if err != nil {
		return session{}, err
	}

	return session{cookie: authedCookie, nonce: sessNonce, expiry: expiry}, nil
}

// splitSetCookie returns the bare "name=value" pair of the first Set-Cookie
// header plus its expiry (zero when the cookie carries none).
func splitSetCookie(h http.Header) (string, time.Time, error) {
	raw := h.Get("Set-Cookie")
	if raw == "" {
		return "", time.Time{}, fmt.Errorf("response carries no Set-Cookie header")
	}

	var expiry time.Time
	parts := strings.Split(raw, "; ")
	for _, p := range parts[1:] {
		if v, ok := strings.CutPrefix(p, "expires="); ok {
			if t, err := http.ParseTime(v); err == nil {
				expiry = t
			}
		}
	}
	return parts[0], expiry, nil
}

func extractNonce(page string) (string, error) {
	m := noncePattern.FindStringSubmatch(page)
	if m == nil {
		return "", fmt.Errorf("csrf nonce not found in page")
	}
	return m[1], nil
}
