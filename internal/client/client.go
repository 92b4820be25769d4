// Package client talks to the exam server's JSON API. A Client implements
// the server side of a session.Session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

// Defaults for Options.
const (
	DefaultTimeout   = 15 * time.Second
	DefaultSaveRate  = rate.Limit(20)
	DefaultSaveBurst = 5
)

// Options configures a Client. Zero values select the defaults.
type Options struct {
	HTTPClient *http.Client
	// Language is sent as Accept-Language.
	Language string
	// SaveRate limits answer saves per second.
	SaveRate  rate.Limit
	SaveBurst int
}

// Client is an authenticated connection to one exam server.
type Client struct {
	base    *url.URL
	http    *http.Client
	lang    string
	limiter *rate.Limiter

	mu    sync.RWMutex
	token string
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if opts.SaveRate == 0 {
		opts.SaveRate = DefaultSaveRate
	}
	if opts.SaveBurst <= 0 {
		opts.SaveBurst = DefaultSaveBurst
	}
	return &Client{
		base:    u,
		http:    opts.HTTPClient,
		lang:    opts.Language,
		limiter: rate.NewLimiter(opts.SaveRate, opts.SaveBurst),
	}, nil
}

// SetToken sets the session token sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current session token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login authenticates and keeps the returned token for later requests.
func (c *Client) Login(ctx context.Context, username, password string) (*model.User, error) {
	var resp struct {
		Token string      `json:"token"`
		User  *model.User `json:"user"`
	}
	in := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, "login", http.MethodPost, "/api/login", in, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return resp.User, nil
}

// Logout ends the server session.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, "logout", http.MethodPost, "/api/logout", nil, nil)
	c.SetToken("")
	return err
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.do(ctx, "get user", http.MethodGet, "/api/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListExams returns the exams visible to the user.
func (c *Client) ListExams(ctx context.Context) ([]model.ExamMeta, error) {
	var out []model.ExamMeta
	err := c.do(ctx, "list exams", http.MethodGet, "/api/exams", nil, &out)
	return out, err
}

// GetExamMeta returns the exam as the user may see it.
func (c *Client) GetExamMeta(ctx context.Context, examID string) (model.Exam, error) {
	var e model.Exam
	err := c.do(ctx, "get exam", http.MethodGet, "/api/exams/"+url.PathEscape(examID), nil, &e)
	return e, err
}

// EnsureAttempt finds or starts the authenticated user's attempt. The server
// takes the user from the session, so userID is not sent.
func (c *Client) EnsureAttempt(ctx context.Context, examID, userID string) (model.Attempt, error) {
	var a model.Attempt
	err := c.do(ctx, "ensure attempt", http.MethodPost, "/api/exams/"+url.PathEscape(examID)+"/attempts", nil, &a)
	return a, err
}

// GetAttempt returns an attempt with its saved answers.
func (c *Client) GetAttempt(ctx context.Context, attemptID string) (model.AttemptDetail, error) {
	var d model.AttemptDetail
	err := c.do(ctx, "get attempt", http.MethodGet, "/api/attempts/"+url.PathEscape(attemptID), nil, &d)
	return d, err
}

// UpsertAnswer saves one answer. Saves are rate limited.
func (c *Client) UpsertAnswer(ctx context.Context, row model.AnswerRow) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	in := struct {
		ItemType model.ItemType  `json:"item_type,omitempty"`
		Value    json.RawMessage `json:"value"`
	}{row.ItemType, row.Value}
	path := "/api/attempts/" + url.PathEscape(row.AttemptID) + "/answers/" + url.PathEscape(row.ItemID)
	return c.do(ctx, "save answer", http.MethodPut, path, in, nil)
}

// SubmitAttempt submits an attempt. Submitting twice is not an error.
func (c *Client) SubmitAttempt(ctx context.Context, attemptID string) (model.Attempt, error) {
	var a model.Attempt
	err := c.do(ctx, "submit attempt", http.MethodPost, "/api/attempts/"+url.PathEscape(attemptID)+"/submit", nil, &a)
	return a, err
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.lang != "" {
		req.Header.Set("Accept-Language", c.lang)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		return &model.TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return responseError(op, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// responseError turns a failed response into an error. Server faults and
// throttling are transient; other failures wrap the model error matching the
// response's error code.
func responseError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var eb errorBody
	_ = json.Unmarshal(raw, &eb)
	msg := eb.Message
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	if msg == "" {
		msg = resp.Status
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return &model.TransientError{Op: op, Err: fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)}
	}
	if sentinel := model.ErrorFromCode(eb.Error); sentinel != nil {
		if msg == sentinel.Error() {
			return fmt.Errorf("%s: %w", op, sentinel)
		}
		return fmt.Errorf("%s: %s: %w", op, msg, sentinel)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w", op, model.ErrUnauthorized)
	}
	return errors.New(op + ": " + msg)
}
