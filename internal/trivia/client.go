// Package trivia fetches multiple-choice question pools from an Open Trivia DB compatible API.
package trivia

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mindquake-service/internal/domain"
	"mindquake-service/internal/retry"
)

const (
	codeSuccess     = 0
	codeNoResults   = 1
	codeRateLimited = 5

	maxPoolSize     = 50
	defaultPoolSize = 15
)

// Client implements memory.PoolLoader against the provider's HTTP API.
type Client struct {
	baseURL  string
	poolSize int
	http     *http.Client
	policy   retry.Policy
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetryPolicy sets how rate-limited and failed requests are retried.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithPoolSize sets how many questions are requested per category.
func WithPoolSize(n int) Option {
	return func(c *Client) {
		if n > 0 && n <= maxPoolSize {
			c.poolSize = n
		}
	}
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		poolSize: defaultPoolSize,
		http:     &http.Client{Timeout: timeout},
		policy:   retry.Policy{MaxAttempts: 4, InitialInterval: 5 * time.Second, MaxInterval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiResponse struct {
	ResponseCode int           `json:"response_code"`
	Results      []apiQuestion `json:"results"`
}

type apiQuestion struct {
	Category         string   `json:"category"`
	Type             string   `json:"type"`
	Difficulty       string   `json:"difficulty"`
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

// LoadPool fetches the pool for one provider category id. An empty pool is not an error.
func (c *Client) LoadPool(ctx context.Context, category string, difficulty domain.Difficulty) ([]domain.Question, error) {
	if _, ok := difficulty.XPRate(); !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidDifficulty, difficulty)
	}
	if _, err := strconv.Atoi(category); err != nil {
		return nil, fmt.Errorf("%w: unknown category %q", domain.ErrInvalidQuizConfig, category)
	}

	pool, err := c.load(ctx, category, difficulty, c.poolSize)
	if err != nil || len(pool) > 0 || c.poolSize <= defaultPoolSize {
		return pool, err
	}
	// The provider answers "no results" when a category holds fewer questions than asked for.
	slog.Info("trivia pool smaller than requested, retrying with fewer questions",
		"category", category, "difficulty", difficulty, "amount", c.poolSize)
	return c.load(ctx, category, difficulty, defaultPoolSize)
}

func (c *Client) load(ctx context.Context, category string, difficulty domain.Difficulty, amount int) ([]domain.Question, error) {
	attempt := 0
	return retry.DoValue(ctx, c.policy, func() ([]domain.Question, error) {
		attempt++
		pool, err := c.fetch(ctx, category, difficulty, amount)
		if err != nil {
			slog.Warn("trivia fetch failed", "category", category, "difficulty", difficulty, "attempt", attempt, "error", err)
		}
		return pool, err
	})
}

func (c *Client) fetch(ctx context.Context, category string, difficulty domain.Difficulty, amount int) ([]domain.Question, error) {
	q := url.Values{}
	q.Set("amount", strconv.Itoa(amount))
	q.Set("category", category)
	q.Set("difficulty", string(difficulty))
	q.Set("type", "multiple")
	q.Set("encode", "url3986")
	endpoint := c.baseURL + "/api.php?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request trivia pool: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, domain.ErrProviderRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("trivia provider returned %s", resp.Status)
		if resp.StatusCode < 500 {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, retry.Permanent(fmt.Errorf("decode trivia response: %w", err))
	}

	switch body.ResponseCode {
	case codeSuccess:
	case codeNoResults:
		return []domain.Question{}, nil
	case codeRateLimited:
		return nil, domain.ErrProviderRateLimited
	default:
		return nil, retry.Permanent(fmt.Errorf("trivia provider response code %d", body.ResponseCode))
	}

	pool := make([]domain.Question, 0, len(body.Results))
	for _, r := range body.Results {
		question, err := r.decode(difficulty)
		if err != nil {
			slog.Warn("skipping undecodable trivia question", "category", category, "error", err)
			continue
		}
		pool = append(pool, question)
	}
	return pool, nil
}

func (r apiQuestion) decode(difficulty domain.Difficulty) (domain.Question, error) {
	var err error
	unescape := func(s string) string {
		if err != nil {
			return ""
		}
		var out string
		out, err = url.PathUnescape(s)
		return out
	}

	q := domain.Question{
		Category:      unescape(r.Category),
		Difficulty:    difficulty,
		Prompt:        unescape(r.Question),
		CorrectAnswer: unescape(r.CorrectAnswer),
	}
	for _, a := range r.IncorrectAnswers {
		q.IncorrectAnswers = append(q.IncorrectAnswers, unescape(a))
	}
	if err != nil {
		return domain.Question{}, err
	}
	return q, nil
}
