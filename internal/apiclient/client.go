// Package apiclient talks to the platform REST backend that owns
// assessments and scores attempts.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/quizrunner/internal/model"
)

const maxErrorBody = 512

// Client is a thin JSON client for the assessment endpoints.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the request timeout of the default *http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a Client for baseURL (e.g. "https://platform.example/api").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithToken returns a copy of c that authenticates as the holder of token.
// The copy shares the underlying *http.Client.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// GetAssessment fetches a test definition with its questions.
// GET assessment/{id}
func (c *Client) GetAssessment(ctx context.Context, id model.ID) (*model.Assessment, error) {
	var a model.Assessment
	if err := c.do(ctx, http.MethodGet, "assessment/"+url.PathEscape(id.String()), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// SubmitAssessment sends the learner's answers once and returns the scored attempt.
// POST assessment/{id}/submit
func (c *Client) SubmitAssessment(ctx context.Context, id model.ID, req model.SubmitRequest) (*model.AttemptSummary, error) {
	if req.Answers == nil {
		req.Answers = map[model.ID]model.Choice{}
	}
	var resp model.SubmitResponse
	if err := c.do(ctx, http.MethodPost, "assessment/"+url.PathEscape(id.String())+"/submit", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Attempt, nil
}

// GetAttempt fetches the full scored result including correct answers.
// GET attempt/{id}
func (c *Client) GetAttempt(ctx context.Context, attemptID model.ID) (*model.AttemptDetail, error) {
	var d model.AttemptDetail
	if err := c.do(ctx, http.MethodGet, "attempt/"+url.PathEscape(attemptID.String()), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, rdr)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
