// Package backend talks to the timesheet API: login, history and raw
// submissions.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pbaille/timeclock/internal/domain"
)

// DefaultBaseURL is the production API
const DefaultBaseURL = "https://timesheetapp.azurewebsites.net/api"

// DefaultTimeout bounds a request when no positive timeout is given
const DefaultTimeout = 30 * time.Second

// maxBody bounds how much of a response is read (5MB)
const maxBody = 5 * 1024 * 1024

// ErrInvalidCredentials is returned when login is refused
var ErrInvalidCredentials = errors.New("invalid email or password")

// Client handles HTTP calls to the timesheet API
type Client struct {
	baseURL   string
	http      *http.Client
	userAgent string
}

// New creates a Client; timeout bounds each request and falls back to
// DefaultTimeout when not positive, so no call can block forever.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: timeout},
		userAgent: "timeclock/1.0",
	}
}

// BaseURL returns the API root without trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Response is a fully read HTTP response
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Send performs one request against path. Transport failures are wrapped
// with domain.ErrNetwork; any HTTP status is returned as a Response.
func (c *Client) Send(ctx context.Context, method, path, contentType string, body []byte, token string) (*Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", domain.ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrNetwork, err)
	}

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// Post sends body with the given content type
func (c *Client) Post(ctx context.Context, path, contentType string, body []byte, token string) (*Response, error) {
	return c.Send(ctx, http.MethodPost, path, contentType, body, token)
}

var loginPaths = []string{"/auth/login", "/Auth/login"}

// Login authenticates and returns the new session
func (c *Client) Login(ctx context.Context, email, password string) (*domain.Session, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var resp *Response
	for i, path := range loginPaths {
		resp, err = c.Post(ctx, path, "application/json", body, "")
		if err != nil {
			return nil, err
		}
		last := i == len(loginPaths)-1
		if !last && (resp.Status == http.StatusNotFound || resp.Status == http.StatusMethodNotAllowed) {
			continue
		}
		break
	}

	switch {
	case resp.Status == http.StatusUnauthorized || resp.Status == http.StatusBadRequest:
		return nil, ErrInvalidCredentials
	case !resp.OK():
		return nil, fmt.Errorf("api error (status %d): %s", resp.Status, ErrorText(resp.Body))
	}

	sess, err := parseLogin(resp.Body, resp.Header, email)
	if err != nil {
		return nil, err
	}
	sess.SavedAt = time.Now()
	return sess, nil
}

var tokenKeys = []string{"token", "accessToken", "access_token", "jwt", "authorizationToken"}

func parseLogin(body []byte, header http.Header, email string) (*domain.Session, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal login response: %w", err)
	}

	sess := &domain.Session{}
	for _, k := range tokenKeys {
		var s string
		if v, ok := raw[k]; ok && json.Unmarshal(v, &s) == nil && s != "" {
			sess.Token = s
			break
		}
	}
	if sess.Token == "" {
		if h := header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			sess.Token = h[7:]
		}
	}

	userRaw := raw
	if v, ok := raw["user"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(v, &nested); err == nil {
			userRaw = nested
		}
	}

	var u loginUser
	u.fill(userRaw)
	if u.id == 0 {
		return nil, errors.New("unexpected login response: no user id")
	}

	sess.User = domain.User{
		ID:          u.id,
		Email:       u.email,
		DisplayName: u.name,
		Role:        u.role,
	}
	if sess.User.Email == "" {
		sess.User.Email = email
	}
	if sess.User.DisplayName == "" {
		sess.User.DisplayName = strings.SplitN(sess.User.Email, "@", 2)[0]
	}
	if sess.User.Role == "" {
		sess.User.Role = "employee"
	}
	return sess, nil
}

type loginUser struct {
	id                int
	email, name, role string
}

func (u *loginUser) fill(raw map[string]json.RawMessage) {
	first := func(keys ...string) json.RawMessage {
		for _, k := range keys {
			if v, ok := raw[k]; ok && string(v) != "null" {
				return v
			}
		}
		return nil
	}
	str := func(v json.RawMessage) string {
		var s string
		if v != nil {
			json.Unmarshal(v, &s)
		}
		return s
	}

	u.id = domain.RawInt(first("id", "userId", "Id", "UserId"))
	u.email = str(first("email", "Email"))
	u.name = str(first("displayName", "userName", "username", "name", "DisplayName", "UserName"))
	u.role = str(first("role", "Role"))
}

var historyPaths = []string{"/timesheets/user/%d", "/Timesheet/DailyResume/UserId/%d"}

// History returns the attendance records of a user
func (c *Client) History(ctx context.Context, userID int, token string) ([]domain.Timesheet, error) {
	var resp *Response
	var err error
	for i, p := range historyPaths {
		resp, err = c.Send(ctx, http.MethodGet, fmt.Sprintf(p, userID), "", nil, token)
		if err != nil {
			return nil, err
		}
		if resp.Status == http.StatusNotFound && i < len(historyPaths)-1 {
			continue
		}
		break
	}

	switch {
	case resp.Status == http.StatusUnauthorized:
		return nil, domain.ErrAuth
	case !resp.OK():
		return nil, fmt.Errorf("api error (status %d): %s", resp.Status, ErrorText(resp.Body))
	}

	return parseHistory(resp.Body)
}

func parseHistory(body []byte) ([]domain.Timesheet, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}

	var list []domain.Timesheet
	if body[0] == '[' {
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("unmarshal history: %w", err)
		}
		return list, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	for _, k := range []string{"data", "timesheets", "items", "$values"} {
		if v, ok := wrapped[k]; ok {
			if err := json.Unmarshal(v, &list); err != nil {
				return nil, fmt.Errorf("unmarshal history: %w", err)
			}
			return list, nil
		}
	}
	return nil, errors.New("unmarshal history: no record list in response")
}
