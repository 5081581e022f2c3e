// Package jokes fetches dad jokes from icanhazdadjoke.com with a built-in
// fallback list.
package jokes

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"beanbot/internal/httpclient"
	"beanbot/internal/logging"
)

// Fallback is served whenever the API cannot produce a joke.
var Fallback = []string{
	"How is a moon like a dollar? They both have four quarters.",
	"How is a dog like a tree? They both lose their bark when they die.",
	"How is a baseball player like a detective? They both go for runs.",
	"How is a lawyer like a banana? They both appear in slips.",
	"How is a book like a king? They both have pages.",
	"How is a tennis match like a math problem? They both involve solving sets.",
	"How is a piano like a fish? You can tune-a piano but you can't tuna fish!",
	"How is a computer like an elephant? They both have memory.",
	"How is a bad joke like a pencil? They both have no point.",
	"How is a calendar like a politician? They both have many dates.",
}

// Config configures the joke client.
type Config struct {
	APIURL          string
	Timeout         time.Duration
	UserAgent       string
	FallbackEnabled bool
	MaxBodyBytes    int64
}

// Source produces jokes.
type Source interface {
	Joke(ctx context.Context) (string, error)
}

// Client implements Source against the icanhazdadjoke JSON API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger logging.Logger
	pick   func(n int) int
}

// NewClient builds a client whose transport is guarded by a circuit breaker,
// so a dead API costs one timeout per cooldown instead of one per message.
func NewClient(cfg Config, logger logging.Logger) *Client {
	logger = logging.OrNop(logger)
	httpClient := httpclient.New(cfg.Timeout)
	breaker := httpclient.NewCircuitBreaker("jokes-api", httpclient.DefaultBreakerConfig(), logger)
	httpClient.Transport = httpclient.WrapTransport(httpClient.Transport, breaker)
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger,
		pick:   rand.IntN,
	}
}

// Joke returns an API joke, or a random fallback joke when the API fails and
// fallbacks are enabled.
func (c *Client) Joke(ctx context.Context) (string, error) {
	joke, err := c.fetch(ctx)
	if err == nil {
		return joke, nil
	}
	if !c.cfg.FallbackEnabled {
		return "", err
	}
	c.logger.Warn("Failed to fetch joke from API, using fallback: %v", err)
	return Fallback[c.pick(len(Fallback))], nil
}

func (c *Client) fetch(ctx context.Context) (string, error) {
	if strings.TrimSpace(c.cfg.APIURL) == "" {
		return "", fmt.Errorf("jokes api url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIURL, nil)
	if err != nil {
		return "", fmt.Errorf("build joke request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch joke: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch joke: unexpected status %d", resp.StatusCode)
	}
	body, err := httpclient.ReadBody(resp, c.cfg.MaxBodyBytes)
	if httpclient.IsBodyTooLarge(err) {
		c.logger.Warn("Joke API sent an oversized body: %v", err)
	}
	if err != nil {
		return "", fmt.Errorf("read joke: %w", err)
	}
	var payload struct {
		Joke string `json:"joke"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode joke: %w", err)
	}
	joke := strings.TrimSpace(payload.Joke)
	if joke == "" {
		return "", fmt.Errorf("decode joke: empty joke")
	}
	return joke, nil
}
