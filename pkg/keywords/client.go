// Package keywords queries a DataForSEO-compatible keyword data API for
// search volume, CPC, competition and monthly history.
package keywords

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

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/research-brief/internal/resilience"
)

const (
	defaultBaseURL  = "https://api.dataforseo.com"
	defaultLocation = "United States"
	defaultLanguage = "English"

	ideasPath = "/v3/keywords_data/google_ads/keywords_for_keywords/live"

	statusOK        = 20000
	statusRateLimit = 40202

	// MaxSeeds is the provider's cap on seed keywords per request.
	MaxSeeds = 20
)

// Client fetches keyword metrics for a set of seed phrases.
type Client interface {
	// Ideas expands seeds into related keywords with metrics.
	Ideas(ctx context.Context, seeds []string) ([]Keyword, error)
}

// Keyword is a single keyword with its metrics.
type Keyword struct {
	Keyword      string
	SearchVolume int64
	CPC          float64
	Competition  float64 // 0..1
	Monthly      []MonthlyVolume
}

// MonthlyVolume is one month of search volume history.
type MonthlyVolume struct {
	Year   int
	Month  int
	Volume int64
}

// StatusError is returned when the provider rejects a request.
type StatusError struct {
	StatusCode int // HTTP status, or 429 for provider-level throttling
	Code       int // provider status code
	Message    string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("keywords: status %d (code %d): %s", e.StatusCode, e.Code, e.Message)
}

// IsRateLimit reports whether err is a provider throttle.
func IsRateLimit(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *client) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithLocale sets the location and language names sent with each request.
func WithLocale(location, language string) Option {
	return func(c *client) {
		if location != "" {
			c.location = location
		}
		if language != "" {
			c.language = language
		}
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.http = hc
	}
}

type client struct {
	login    string
	password string
	baseURL  string
	location string
	language string
	limiter  *rate.Limiter
	http     *http.Client
}

// NewClient creates a keyword data client authenticated with basic auth.
func NewClient(login, password string, opts ...Option) Client {
	c := &client{
		login:    login,
		password: password,
		baseURL:  defaultBaseURL,
		location: defaultLocation,
		language: defaultLanguage,
		limiter:  rate.NewLimiter(2, 2),
		http:     &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type taskRequest struct {
	Keywords     []string `json:"keywords"`
	LocationName string   `json:"location_name"`
	LanguageName string   `json:"language_name"`
}

type envelope struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
	Tasks         []struct {
		StatusCode    int           `json:"status_code"`
		StatusMessage string        `json:"status_message"`
		Result        []keywordItem `json:"result"`
	} `json:"tasks"`
}

type keywordItem struct {
	Keyword          string   `json:"keyword"`
	SearchVolume     *int64   `json:"search_volume"`
	CPC              *float64 `json:"cpc"`
	CompetitionIndex *float64 `json:"competition_index"`
	MonthlySearches  []struct {
		Year         int    `json:"year"`
		Month        int    `json:"month"`
		SearchVolume *int64 `json:"search_volume"`
	} `json:"monthly_searches"`
}

func (c *client) Ideas(ctx context.Context, seeds []string) ([]Keyword, error) {
	seeds = cleanSeeds(seeds)
	if len(seeds) == 0 {
		return nil, eris.New("keywords: no seeds")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "keywords: rate limiter")
	}

	body, err := json.Marshal([]taskRequest{{
		Keywords:     seeds,
		LocationName: c.location,
		LanguageName: c.language,
	}})
	if err != nil {
		return nil, eris.Wrap(err, "keywords: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ideasPath, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "keywords: create request")
	}
	req.SetBasicAuth(c.login, c.password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "keywords: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, eris.Wrap(err, "keywords: read response")
	}

	if resp.StatusCode != http.StatusOK {
		se := &StatusError{StatusCode: resp.StatusCode, Message: string(raw)}
		if d, ok := resilience.ParseRetryAfter(resp.Header.Get("Retry-After")); ok && d > 0 {
			se.RetryAfter = d
		}
		return nil, se
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, eris.Wrap(err, "keywords: unmarshal response")
	}
	if err := checkStatus(env.StatusCode, env.StatusMessage); err != nil {
		return nil, err
	}

	var out []Keyword
	for _, task := range env.Tasks {
		if err := checkStatus(task.StatusCode, task.StatusMessage); err != nil {
			return nil, err
		}
		for _, item := range task.Result {
			out = append(out, item.toKeyword())
		}
	}
	return out, nil
}

func checkStatus(code int, msg string) error {
	switch code {
	case statusOK:
		return nil
	case statusRateLimit:
		return &StatusError{StatusCode: http.StatusTooManyRequests, Code: code, Message: msg}
	default:
		return &StatusError{StatusCode: http.StatusBadGateway, Code: code, Message: msg}
	}
}

func (k keywordItem) toKeyword() Keyword {
	kw := Keyword{Keyword: k.Keyword}
	if k.SearchVolume != nil {
		kw.SearchVolume = *k.SearchVolume
	}
	if k.CPC != nil {
		kw.CPC = *k.CPC
	}
	if k.CompetitionIndex != nil {
		kw.Competition = *k.CompetitionIndex / 100
	}
	for _, m := range k.MonthlySearches {
		mv := MonthlyVolume{Year: m.Year, Month: m.Month}
		if m.SearchVolume != nil {
			mv.Volume = *m.SearchVolume
		}
		kw.Monthly = append(kw.Monthly, mv)
	}
	return kw
}

func cleanSeeds(seeds []string) []string {
	seen := make(map[string]bool, len(seeds))
	out := make([]string, 0, len(seeds))
	for _, s := range seeds {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if len(out) == MaxSeeds {
			break
		}
	}
	return out
}
